// Package audit cross-checks the bronze, silver and gold layers of one
// capture after a run, the way an operator would before trusting the gold
// table.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/couchcryptid/brewery-data-etl/internal/lake"
	"github.com/google/go-cmp/cmp"
)

// ErrNoCaptures is returned by LatestDateRequest when the bronze root holds
// no finished capture.
var ErrNoCaptures = errors.New("no finished capture found")

// Check is one named group of assertions.
type Check struct {
	Name   string
	Errors []string
}

func (c *Check) errorf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Sprintf(format, args...))
}

// Passed reports whether the check found no problem.
func (c *Check) Passed() bool { return len(c.Errors) == 0 }

// Report holds the outcome of every check for one capture.
type Report struct {
	DateRequest string
	RawRows     int
	Records     int
	Locations   int
	Checks      []*Check
}

// Passed reports whether every check passed.
func (r Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed() {
			return false
		}
	}
	return true
}

// Failures lists every error prefixed with the name of its check.
func (r Report) Failures() []string {
	var out []string
	for _, c := range r.Checks {
		for _, e := range c.Errors {
			out = append(out, c.Name+": "+e)
		}
	}
	return out
}

// Auditor reads the three layers back and compares them.
type Auditor struct {
	bronze blobstore.Store
	silver blobstore.Store
	gold   blobstore.Store
	mem    memory.Allocator
}

// New creates an Auditor over the three layer roots.
func New(bronze, silver, gold blobstore.Store, mem memory.Allocator) *Auditor {
	return &Auditor{bronze: bronze, silver: silver, gold: gold, mem: mem}
}

// Run audits the capture dateRequest. Storage and decoding failures are
// returned as errors; data problems are reported as failed checks.
func (a *Auditor) Run(ctx context.Context, dateRequest string) (Report, error) {
	report := Report{DateRequest: dateRequest}

	markers, err := a.checkMarkers(ctx, dateRequest)
	if err != nil {
		return report, err
	}

	rawCheck, parsed, err := a.checkRaw(ctx, dateRequest, &report)
	if err != nil {
		return report, err
	}

	tbl, err := lake.ReadTabular(ctx, a.silver, a.mem, dateRequest)
	if err != nil {
		return report, fmt.Errorf("read tabular layer: %w", err)
	}
	records, err := lake.Records(tbl)
	tbl.Release()
	if err != nil {
		return report, fmt.Errorf("decode tabular layer: %w", err)
	}
	report.Records = len(records)

	gtbl, err := lake.ReadAnalytical(ctx, a.gold, a.mem, dateRequest)
	if err != nil {
		return report, fmt.Errorf("read analytical layer: %w", err)
	}
	aggs, err := lake.Aggregates(gtbl)
	gtbl.Release()
	if err != nil {
		return report, fmt.Errorf("decode analytical layer: %w", err)
	}
	report.Locations = len(aggs)

	report.Checks = []*Check{
		markers,
		rawCheck,
		checkTabular(dateRequest, records, parsed),
		checkAnalytical(dateRequest, aggs),
		checkPartitions(records, aggs),
		checkTotals(records, aggs),
	}
	return report, nil
}

func (a *Auditor) checkMarkers(ctx context.Context, dateRequest string) (*Check, error) {
	c := &Check{Name: "success markers"}
	leaves := []struct {
		store blobstore.Store
		leaf  string
	}{
		{a.bronze, lake.RawLeaf(dateRequest)},
		{a.silver, lake.TabularLeaf(dateRequest)},
		{a.gold, lake.AnalyticalLeaf(dateRequest)},
	}
	for _, l := range leaves {
		ok, err := lake.LeafComplete(ctx, l.store, l.leaf)
		if err != nil {
			return nil, fmt.Errorf("check marker in %s: %w", l.store.URL(l.leaf), err)
		}
		if !ok {
			c.errorf("%s has no %s", l.store.URL(l.leaf), lake.SuccessMarker)
		}
	}
	return c, nil
}

// checkRaw verifies the bronze row and returns the parsed payload when it is
// valid, or -1 records when it is not.
func (a *Auditor) checkRaw(ctx context.Context, dateRequest string, report *Report) (*Check, int, error) {
	c := &Check{Name: "raw capture"}
	rows, err := lake.ReadRaw(ctx, a.bronze, dateRequest)
	if err != nil {
		return nil, -1, fmt.Errorf("read raw layer: %w", err)
	}
	report.RawRows = len(rows)

	if len(rows) != 1 {
		c.errorf("expected exactly 1 row, got %d", len(rows))
	}
	if len(rows) == 0 {
		return c, -1, nil
	}
	if rows[0].DataRequest != dateRequest {
		c.errorf("data_request is %q, want %q", rows[0].DataRequest, dateRequest)
	}
	parsed, err := domain.ParsePayload(rows[0].Response)
	if err != nil {
		c.errorf("payload does not parse: %v", err)
		return c, -1, nil
	}
	return c, len(parsed), nil
}

func checkTabular(dateRequest string, records []domain.NormalizedRecord, parsed int) *Check {
	c := &Check{Name: "tabular rows"}
	if parsed >= 0 && parsed != len(records) {
		c.errorf("raw payload has %d records, tabular layer has %d", parsed, len(records))
	}
	for i, r := range records {
		if r.DateRequest != dateRequest {
			c.errorf("row %d: date_request is %q, want %q", i, r.DateRequest, dateRequest)
		}
		if want := domain.LocationKey(r.Country, r.State); r.Location != want {
			c.errorf("row %d: location is %q, want %q", i, r.Location, want)
		}
	}
	return c
}

func checkAnalytical(dateRequest string, aggs []domain.LocationAggregate) *Check {
	c := &Check{Name: "analytical rows"}
	seen := make(map[string]bool, len(aggs))
	for _, agg := range aggs {
		if agg.DateRequest != dateRequest {
			c.errorf("%s: date_request is %q, want %q", agg.Location, agg.DateRequest, dateRequest)
		}
		if seen[agg.Location] {
			c.errorf("%s: duplicate location", agg.Location)
		}
		seen[agg.Location] = true
		if sum := agg.CategorySum(); sum != int64(agg.TotBrewery) {
			c.errorf("%s: categories sum to %d, %s is %d", agg.Location, sum, lake.TotalColumn, agg.TotBrewery)
		}
		for _, cat := range domain.Categories() {
			if v := agg.Counter(cat); v < 0 {
				c.errorf("%s: %s is negative (%d)", agg.Location, cat.Column(), v)
			}
		}
	}
	return c
}

func checkPartitions(records []domain.NormalizedRecord, aggs []domain.LocationAggregate) *Check {
	c := &Check{Name: "partition completeness"}
	silver := make(map[string]bool)
	for _, r := range records {
		silver[r.Location] = true
	}
	gold := make(map[string]bool, len(aggs))
	for _, agg := range aggs {
		gold[agg.Location] = true
	}

	if missing := difference(silver, gold); len(missing) > 0 {
		c.errorf("locations without an aggregate: %s", strings.Join(missing, ", "))
	}
	if extra := difference(gold, silver); len(extra) > 0 {
		c.errorf("aggregates without tabular rows: %s", strings.Join(extra, ", "))
	}
	return c
}

// checkTotals recomputes the gold rows from the silver rows and diffs them.
func checkTotals(records []domain.NormalizedRecord, aggs []domain.LocationAggregate) *Check {
	c := &Check{Name: "location totals"}
	want, err := domain.Aggregate(domain.ObservationsFromRecords(records))
	if err != nil {
		c.errorf("recompute aggregates: %v", err)
		return c
	}

	got := append([]domain.LocationAggregate(nil), aggs...)
	sort.Slice(got, func(i, j int) bool {
		if got[i].DateRequest != got[j].DateRequest {
			return got[i].DateRequest < got[j].DateRequest
		}
		return got[i].Location < got[j].Location
	})
	if len(want) == 0 && len(got) == 0 {
		return c
	}
	if diff := cmp.Diff(want, got); diff != "" {
		c.errorf("analytical layer differs from tabular layer (-recomputed +stored):\n%s", diff)
	}
	return c
}

func difference(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// LatestDateRequest returns the newest capture timestamp with a finished
// bronze partition.
func LatestDateRequest(ctx context.Context, bronze blobstore.Store) (string, error) {
	keys, err := bronze.List(ctx, "")
	if err != nil {
		return "", fmt.Errorf("list %s: %w", bronze.URL(""), err)
	}

	prefix := lake.DateRequestColumn + "="
	var latest string
	for _, key := range keys {
		dir, name, ok := strings.Cut(key, "/")
		if !ok || name != lake.SuccessMarker || !strings.HasPrefix(dir, prefix) {
			continue
		}
		ts := lake.UnescapePartitionValue(strings.TrimPrefix(dir, prefix))
		if ts > latest {
			latest = ts
		}
	}
	if latest == "" {
		return "", ErrNoCaptures
	}
	return latest, nil
}
