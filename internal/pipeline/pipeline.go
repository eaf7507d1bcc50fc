package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/couchcryptid/brewery-data-etl/internal/lake"
	"github.com/couchcryptid/brewery-data-etl/internal/observability"
)

// Stage names used in logs, metrics and run summaries.
const (
	StageFetch      = "fetch"
	StageRaw        = "raw"
	StageTabular    = "tabular"
	StageAnalytical = "analytical"
	StagePublish    = "publish"
)

// Fetcher captures one snapshot of the source.
type Fetcher interface {
	Fetch(ctx context.Context) (domain.Capture, error)
}

// RawSink archives captures untouched.
type RawSink interface {
	Exists(ctx context.Context, dateRequest string) (bool, error)
	Write(ctx context.Context, capture domain.Capture) (int64, error)
}

// Publisher forwards the gold rows of a run downstream.
type Publisher interface {
	Publish(ctx context.Context, aggs []domain.LocationAggregate) error
}

// Stages wires the steps of a run. Publisher may be nil.
type Stages struct {
	Fetcher    Fetcher
	Raw        RawSink
	Normalizer *Normalizer
	Aggregator *Aggregator
	Publisher  Publisher
}

// RunSummary describes one run, successful or not.
type RunSummary struct {
	DateRequest     string           `json:"date_request,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	Succeeded       bool             `json:"succeeded"`
	FailedStage     string           `json:"failed_stage,omitempty"`
	Error           string           `json:"error,omitempty"`
	PayloadBytes    int              `json:"payload_bytes"`
	Records         int64            `json:"records"`
	Partitions      []string         `json:"partitions"`
	Locations       int              `json:"locations"`
	Published       int              `json:"published"`
	BytesWritten    map[string]int64 `json:"bytes_written"`
}

// Pipeline sequences fetch, raw capture, normalization and aggregation.
type Pipeline struct {
	stages  Stages
	cache   *lake.TableCache
	logger  *slog.Logger
	metrics *observability.Metrics

	runMu sync.Mutex
	ready atomic.Bool

	lastMu  sync.RWMutex
	last    RunSummary
	hasLast bool
}

// New creates a Pipeline. The cache holds the silver table between the
// tabular write and the aggregation.
func New(stages Stages, cache *lake.TableCache, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:  stages,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastRun returns the summary of the most recent run, if any.
func (p *Pipeline) LastRun() (RunSummary, bool) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	return p.last, p.hasLast
}

// Run executes one full snapshot pass. Any failure aborts the run and is
// returned as is; layers already written stay in place. Concurrent calls are
// serialized.
func (p *Pipeline) Run(ctx context.Context) (summary RunSummary, err error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	start := time.Now()
	summary = RunSummary{StartedAt: start, BytesWritten: make(map[string]int64)}
	defer func() {
		summary.FinishedAt = time.Now()
		summary.DurationSeconds = summary.FinishedAt.Sub(start).Seconds()
		p.finish(&summary, err)
	}()

	p.logger.Info("run started")

	var capture domain.Capture
	err = p.stage(StageFetch, &summary, func() (err error) {
		capture, err = p.stages.Fetcher.Fetch(ctx)
		return err
	})
	if err != nil {
		return summary, err
	}
	summary.DateRequest = capture.Timestamp
	summary.PayloadBytes = len(capture.Payload)

	p.warnOnCollision(ctx, capture.Timestamp)

	err = p.stage(StageRaw, &summary, func() error {
		n, err := p.stages.Raw.Write(ctx, capture)
		summary.BytesWritten[StageRaw] = n
		return err
	})
	if err != nil {
		return summary, err
	}

	err = p.stage(StageTabular, &summary, func() error {
		tbl, err := p.stages.Normalizer.BuildTable(capture)
		if err != nil {
			return err
		}
		p.cache.Acquire(capture.Timestamp, tbl)
		tbl.Release()
		p.metrics.CachedTables.Set(float64(p.cache.Len()))

		retained, _ := p.cache.Get(capture.Timestamp)
		stats, err := p.stages.Normalizer.WriteTable(ctx, capture.Timestamp, retained)
		summary.Records = stats.Rows
		summary.Partitions = stats.Partitions
		summary.BytesWritten[StageTabular] = stats.Bytes
		return err
	})
	defer p.releaseTable(capture.Timestamp)
	if err != nil {
		return summary, err
	}
	p.metrics.RecordsNormalized.Add(float64(summary.Records))

	var aggs []domain.LocationAggregate
	err = p.stage(StageAnalytical, &summary, func() error {
		tbl, ok := p.cache.Get(capture.Timestamp)
		if !ok {
			return errors.New("tabular table is no longer retained")
		}
		var n int64
		var err error
		aggs, n, err = p.stages.Aggregator.Aggregate(ctx, capture.Timestamp, tbl)
		summary.BytesWritten[StageAnalytical] = n
		return err
	})
	if err != nil {
		return summary, err
	}
	summary.Locations = len(aggs)
	p.metrics.LocationsAggregated.Add(float64(len(aggs)))

	if p.stages.Publisher != nil && len(aggs) > 0 {
		err = p.stage(StagePublish, &summary, func() error {
			return p.stages.Publisher.Publish(ctx, aggs)
		})
		if err != nil {
			return summary, err
		}
		summary.Published = len(aggs)
		p.metrics.AggregatesPublished.Add(float64(len(aggs)))
	}

	return summary, nil
}

// stage runs fn, timing it and attributing a failure to name.
func (p *Pipeline) stage(name string, summary *RunSummary, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.StageErrors.WithLabelValues(name).Inc()
		summary.FailedStage = name
		return err
	}
	p.logger.Debug("stage completed", "stage", name, "duration", time.Since(start))
	return nil
}

func (p *Pipeline) warnOnCollision(ctx context.Context, dateRequest string) {
	exists, err := p.stages.Raw.Exists(ctx, dateRequest)
	if err != nil {
		p.logger.Warn("could not check for an earlier capture", "date_request", dateRequest, "error", err)
		return
	}
	if exists {
		p.logger.Warn("capture timestamp already used, overwriting its partitions", "date_request", dateRequest)
	}
}

func (p *Pipeline) releaseTable(dateRequest string) {
	if dateRequest == "" {
		return
	}
	p.cache.Release(dateRequest)
	p.metrics.CachedTables.Set(float64(p.cache.Len()))
}

func (p *Pipeline) finish(summary *RunSummary, err error) {
	for layer, n := range summary.BytesWritten {
		p.metrics.BytesWritten.WithLabelValues(layer).Add(float64(n))
	}
	p.metrics.RunDuration.Observe(summary.DurationSeconds)

	if err != nil {
		summary.Error = err.Error()
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
		p.logger.Error("run failed",
			"date_request", summary.DateRequest,
			"stage", summary.FailedStage,
			"error", err,
		)
	} else {
		summary.Succeeded = true
		p.ready.Store(true)
		p.metrics.RunsTotal.WithLabelValues("success").Inc()
		p.metrics.LastSuccess.Set(float64(summary.FinishedAt.Unix()))
		p.logger.Info("run completed",
			"date_request", summary.DateRequest,
			"records", summary.Records,
			"partitions", len(summary.Partitions),
			"locations", summary.Locations,
			"duration", summary.FinishedAt.Sub(summary.StartedAt),
		)
	}

	p.lastMu.Lock()
	p.last = *summary
	p.hasLast = true
	p.lastMu.Unlock()
}
