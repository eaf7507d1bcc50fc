package pipeline

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/couchcryptid/brewery-data-etl/internal/lake"
)

// TabularSink persists the silver table of a run.
type TabularSink interface {
	Write(ctx context.Context, dateRequest string, tbl arrow.Table) (lake.TabularStats, error)
}

// AnalyticalSink persists the gold rows of a run.
type AnalyticalSink interface {
	Write(ctx context.Context, dateRequest string, aggs []domain.LocationAggregate) (int64, error)
}

// Normalizer turns a capture into the silver table.
type Normalizer struct {
	mem    memory.Allocator
	sink   TabularSink
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer that builds tables with mem.
func NewNormalizer(mem memory.Allocator, sink TabularSink, logger *slog.Logger) *Normalizer {
	return &Normalizer{mem: mem, sink: sink, logger: logger}
}

// BuildTable parses the payload and stamps every record with the capture
// timestamp and its location. The caller owns the returned table.
func (n *Normalizer) BuildTable(capture domain.Capture) (arrow.Table, error) {
	records, err := domain.ParsePayload(capture.Payload)
	if err != nil {
		return nil, err
	}
	normalized := domain.Normalize(records, capture.Timestamp)
	n.logger.Debug("payload normalized", "date_request", capture.Timestamp, "records", len(normalized))
	return lake.NewTabularTable(n.mem, normalized), nil
}

// WriteTable persists tbl without taking ownership of it.
func (n *Normalizer) WriteTable(ctx context.Context, dateRequest string, tbl arrow.Table) (lake.TabularStats, error) {
	return n.sink.Write(ctx, dateRequest, tbl)
}

// Aggregator derives and persists the per-location counters.
type Aggregator struct {
	sink   AnalyticalSink
	logger *slog.Logger
}

// NewAggregator creates an Aggregator writing to sink.
func NewAggregator(sink AnalyticalSink, logger *slog.Logger) *Aggregator {
	return &Aggregator{sink: sink, logger: logger}
}

// Aggregate counts breweries per category and location in tbl and writes the
// result. It returns the rows written and their size in bytes.
func (a *Aggregator) Aggregate(ctx context.Context, dateRequest string, tbl arrow.Table) ([]domain.LocationAggregate, int64, error) {
	observations, err := lake.Observations(tbl)
	if err != nil {
		return nil, 0, err
	}
	aggs, err := domain.Aggregate(observations)
	if err != nil {
		return nil, 0, err
	}
	n, err := a.sink.Write(ctx, dateRequest, aggs)
	if err != nil {
		return nil, 0, err
	}
	return aggs, n, nil
}
