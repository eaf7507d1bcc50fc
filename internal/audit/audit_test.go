package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/couchcryptid/brewery-data-etl/internal/lake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTimestamp = "20240101_120000"
	testPayload   = `[
		{"id":"1","name":"Ninkasi","brewery_type":"large","country":"United States","state":"Oregon"},
		{"id":"2","name":"Cascade","brewery_type":"micro","country":"United States","state":"Oregon"},
		{"id":"3","name":"Anchor","brewery_type":"brewpub","country":"United States","state":"California"},
		{"id":"4","name":"Nowhere","brewery_type":null}
	]`
)

type layers struct {
	bronze, silver, gold *blobstore.FSStore
	mem                  *memory.CheckedAllocator
	logger               *slog.Logger
}

func newLayers(t *testing.T) *layers {
	t.Helper()
	open := func() *blobstore.FSStore {
		st, err := blobstore.NewFSStore(t.TempDir())
		require.NoError(t, err)
		return st
	}
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return &layers{
		bronze: open(),
		silver: open(),
		gold:   open(),
		mem:    mem,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (l *layers) auditor() *Auditor {
	return New(l.bronze, l.silver, l.gold, l.mem)
}

// materialize writes the three layers for payload the same way a run does
// and returns the gold rows.
func (l *layers) materialize(t *testing.T, ts, payload string) []domain.LocationAggregate {
	t.Helper()
	ctx := context.Background()

	_, err := lake.NewRawWriter(l.bronze, l.logger).Write(ctx, domain.Capture{Timestamp: ts, Payload: payload})
	require.NoError(t, err)

	parsed, err := domain.ParsePayload(payload)
	require.NoError(t, err)
	records := domain.Normalize(parsed, ts)

	tbl := lake.NewTabularTable(l.mem, records)
	defer tbl.Release()
	_, err = lake.NewTabularWriter(l.silver, l.mem, l.logger).Write(ctx, ts, tbl)
	require.NoError(t, err)

	aggs, err := domain.Aggregate(domain.ObservationsFromRecords(records))
	require.NoError(t, err)
	l.writeGold(t, ts, aggs)
	return aggs
}

func (l *layers) writeGold(t *testing.T, ts string, aggs []domain.LocationAggregate) {
	t.Helper()
	_, err := lake.NewAnalyticalWriter(l.gold, l.mem, l.logger).Write(context.Background(), ts, aggs)
	require.NoError(t, err)
}

func checkByName(t *testing.T, r Report, name string) *Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no check named %q", name)
	return nil
}

func TestRun_ConsistentLayersPass(t *testing.T) {
	l := newLayers(t)
	l.materialize(t, testTimestamp, testPayload)

	report, err := l.auditor().Run(context.Background(), testTimestamp)
	require.NoError(t, err)

	assert.True(t, report.Passed(), "failures: %v", report.Failures())
	assert.Empty(t, report.Failures())
	assert.Equal(t, 1, report.RawRows)
	assert.Equal(t, 4, report.Records)
	assert.Equal(t, 3, report.Locations)
	assert.Len(t, report.Checks, 6)
}

func TestRun_EmptyCapturePasses(t *testing.T) {
	l := newLayers(t)
	l.materialize(t, testTimestamp, "[]")

	report, err := l.auditor().Run(context.Background(), testTimestamp)
	require.NoError(t, err)

	assert.True(t, report.Passed(), "failures: %v", report.Failures())
	assert.Zero(t, report.Records)
	assert.Zero(t, report.Locations)
}

func TestRun_TamperedTotalFails(t *testing.T) {
	l := newLayers(t)
	aggs := l.materialize(t, testTimestamp, testPayload)

	aggs[0].TotBrewery++
	l.writeGold(t, testTimestamp, aggs)

	report, err := l.auditor().Run(context.Background(), testTimestamp)
	require.NoError(t, err)

	assert.False(t, report.Passed())
	assert.False(t, checkByName(t, report, "analytical rows").Passed())
	assert.False(t, checkByName(t, report, "location totals").Passed())
	assert.True(t, checkByName(t, report, "partition completeness").Passed())
	for _, f := range report.Failures() {
		assert.True(t, strings.HasPrefix(f, "analytical rows: ") || strings.HasPrefix(f, "location totals: "), f)
	}
}

func TestRun_MissingLocationFails(t *testing.T) {
	l := newLayers(t)
	aggs := l.materialize(t, testTimestamp, testPayload)

	l.writeGold(t, testTimestamp, aggs[1:])

	report, err := l.auditor().Run(context.Background(), testTimestamp)
	require.NoError(t, err)

	partitions := checkByName(t, report, "partition completeness")
	require.Len(t, partitions.Errors, 1)
	assert.Contains(t, partitions.Errors[0], aggs[0].Location)
	assert.False(t, checkByName(t, report, "location totals").Passed())
}

func TestRun_MissingLayersFailMarkers(t *testing.T) {
	l := newLayers(t)

	report, err := l.auditor().Run(context.Background(), testTimestamp)
	require.NoError(t, err)

	markers := checkByName(t, report, "success markers")
	assert.Len(t, markers.Errors, 3)
	raw := checkByName(t, report, "raw capture")
	require.Len(t, raw.Errors, 1)
	assert.Contains(t, raw.Errors[0], "got 0")
	assert.False(t, report.Passed())
}

func TestRun_RawPayloadMismatchFails(t *testing.T) {
	l := newLayers(t)
	l.materialize(t, testTimestamp, testPayload)

	_, err := lake.NewRawWriter(l.bronze, l.logger).Write(context.Background(), domain.Capture{
		Timestamp: testTimestamp,
		Payload:   `[{"id":"1"}]`,
	})
	require.NoError(t, err)

	report, err := l.auditor().Run(context.Background(), testTimestamp)
	require.NoError(t, err)

	tabular := checkByName(t, report, "tabular rows")
	require.Len(t, tabular.Errors, 1)
	assert.Contains(t, tabular.Errors[0], "raw payload has 1 records, tabular layer has 4")
}

func TestRun_UnparsableRawPayloadFails(t *testing.T) {
	l := newLayers(t)
	l.materialize(t, testTimestamp, "[]")

	_, err := lake.NewRawWriter(l.bronze, l.logger).Write(context.Background(), domain.Capture{
		Timestamp: testTimestamp,
		Payload:   "<html>rate limited</html>",
	})
	require.NoError(t, err)

	report, err := l.auditor().Run(context.Background(), testTimestamp)
	require.NoError(t, err)

	raw := checkByName(t, report, "raw capture")
	require.Len(t, raw.Errors, 1)
	assert.Contains(t, raw.Errors[0], "payload does not parse")
	assert.True(t, checkByName(t, report, "tabular rows").Passed())
}

func TestLatestDateRequest(t *testing.T) {
	l := newLayers(t)
	ctx := context.Background()

	_, err := LatestDateRequest(ctx, l.bronze)
	require.True(t, errors.Is(err, ErrNoCaptures))

	for _, ts := range []string{"20240101_120000", "20240301_080000", "20240215_235959"} {
		_, err := lake.NewRawWriter(l.bronze, l.logger).Write(ctx, domain.Capture{Timestamp: ts, Payload: "[]"})
		require.NoError(t, err)
	}
	// An unfinished leaf is ignored.
	require.NoError(t, l.bronze.Put(ctx, lake.RawLeaf("20250101_000000")+"part-00000.parquet", []byte("partial")))

	latest, err := LatestDateRequest(ctx, l.bronze)
	require.NoError(t, err)
	assert.Equal(t, "20240301_080000", latest)
}

func TestReport_Failures(t *testing.T) {
	r := Report{Checks: []*Check{
		{Name: "a"},
		{Name: "b", Errors: []string{"first", "second"}},
	}}
	assert.False(t, r.Passed())
	assert.Equal(t, []string{"b: first", "b: second"}, r.Failures())
}
