// Package openbrewery fetches the full brewery directory snapshot from the
// Open Brewery DB API.
package openbrewery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/couchcryptid/brewery-data-etl/internal/observability"
)

// DefaultURL is the public directory endpoint.
const DefaultURL = "https://api.openbrewerydb.org/breweries"

// Client performs the snapshot request.
type Client struct {
	httpClient *http.Client
	url        string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a fetcher for url. The HTTP client has no timeout; the
// caller bounds the request through the context.
func NewClient(url string, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		url:        url,
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch issues one GET and returns the body untouched along with the capture
// timestamp, taken once the body has been read. The status code is not
// checked: whatever the source answers is archived.
func (c *Client) Fetch(ctx context.Context) (domain.Capture, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.Capture{}, &domain.FetchError{URL: c.url, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Capture{}, &domain.FetchError{URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Capture{}, &domain.FetchError{URL: c.url, Err: fmt.Errorf("read body: %w", err)}
	}
	capturedAt := domain.Now()

	c.metrics.FetchResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("source answered with a non-success status",
			"url", c.url,
			"status", resp.StatusCode,
		)
	}

	if !utf8.Valid(body) {
		return domain.Capture{}, &domain.FetchError{URL: c.url, Err: errors.New("response body is not valid UTF-8 text")}
	}

	c.metrics.PayloadBytes.Set(float64(len(body)))
	capture := domain.Capture{
		Timestamp: domain.FormatTimestamp(capturedAt),
		Payload:   string(body),
	}
	c.logger.Info("snapshot fetched",
		"url", c.url,
		"status", resp.StatusCode,
		"bytes", len(body),
		"date_request", capture.Timestamp,
	)
	return capture, nil
}
