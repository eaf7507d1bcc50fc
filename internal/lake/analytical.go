package lake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
)

// TotalColumn holds the row count of a group.
const TotalColumn = "tot_brewery"

// AnalyticalSchema is the gold table. The counters follow domain.Categories
// and end with the total.
var AnalyticalSchema = buildAnalyticalSchema()

func buildAnalyticalSchema() *arrow.Schema {
	fields := []arrow.Field{
		{Name: DateRequestColumn, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: LocationColumn, Type: arrow.BinaryTypes.String, Nullable: true},
	}
	for _, c := range domain.Categories() {
		fields = append(fields, arrow.Field{Name: c.Column(), Type: arrow.PrimitiveTypes.Int32, Nullable: true})
	}
	fields = append(fields, arrow.Field{Name: TotalColumn, Type: arrow.PrimitiveTypes.Int32, Nullable: true})
	return arrow.NewSchema(fields, nil)
}

// AnalyticalWriter writes the gold layer.
type AnalyticalWriter struct {
	store  blobstore.Store
	mem    memory.Allocator
	logger *slog.Logger
}

// NewAnalyticalWriter creates a gold writer over store.
func NewAnalyticalWriter(store blobstore.Store, mem memory.Allocator, logger *slog.Logger) *AnalyticalWriter {
	return &AnalyticalWriter{store: store, mem: mem, logger: logger}
}

// Write replaces the gold leaf of dateRequest with a single file holding the
// aggregates in the order given. It returns the bytes written.
func (w *AnalyticalWriter) Write(ctx context.Context, dateRequest string, aggs []domain.LocationAggregate) (int64, error) {
	leaf := AnalyticalLeaf(dateRequest)

	rec := w.record(aggs)
	data, err := encodeParquet(AnalyticalSchema, rec)
	rec.Release()
	if err != nil {
		return 0, &domain.WriteError{Path: w.store.URL(leaf + partFileName), Err: err}
	}

	if err := replaceLeaf(ctx, w.store, leaf, map[string][]byte{partFileName: data}); err != nil {
		return 0, err
	}

	w.logger.Info("analytical layer written",
		"date_request", dateRequest,
		"path", w.store.URL(leaf),
		"locations", len(aggs),
	)
	return int64(len(data)), nil
}

func (w *AnalyticalWriter) record(aggs []domain.LocationAggregate) arrow.Record {
	b := array.NewRecordBuilder(w.mem, AnalyticalSchema)
	defer b.Release()

	categories := domain.Categories()
	for _, a := range aggs {
		b.Field(0).(*array.StringBuilder).Append(a.DateRequest)
		b.Field(1).(*array.StringBuilder).Append(a.Location)
		for i, c := range categories {
			b.Field(2 + i).(*array.Int32Builder).Append(a.Counter(c))
		}
		b.Field(2 + len(categories)).(*array.Int32Builder).Append(a.TotBrewery)
	}
	return b.NewRecord()
}

// Aggregates converts a gold table back into rows. Null counters read as 0.
func Aggregates(tbl arrow.Table) ([]domain.LocationAggregate, error) {
	dates, err := stringColumn(tbl, DateRequestColumn)
	if err != nil {
		return nil, err
	}
	locations, err := stringColumn(tbl, LocationColumn)
	if err != nil {
		return nil, err
	}

	categories := domain.Categories()
	counters := make([][]int32, len(categories))
	for i, c := range categories {
		if counters[i], err = int32Column(tbl, c.Column()); err != nil {
			return nil, err
		}
	}
	totals, err := int32Column(tbl, TotalColumn)
	if err != nil {
		return nil, err
	}

	out := make([]domain.LocationAggregate, len(dates))
	for i := range out {
		a := domain.LocationAggregate{
			TotBrewpub:    counters[domain.CategoryBrewpub][i],
			TotProprietor: counters[domain.CategoryProprietor][i],
			TotContract:   counters[domain.CategoryContract][i],
			TotClosed:     counters[domain.CategoryClosed][i],
			TotMicro:      counters[domain.CategoryMicro][i],
			TotLarge:      counters[domain.CategoryLarge][i],
			TotOther:      counters[domain.CategoryOther][i],
			TotBrewery:    totals[i],
		}
		if dates[i] != nil {
			a.DateRequest = *dates[i]
		}
		if locations[i] != nil {
			a.Location = *locations[i]
		}
		out[i] = a
	}
	return out, nil
}

func int32Column(tbl arrow.Table, name string) ([]int32, error) {
	idx := tbl.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("table has no column %q", name)
	}

	values := make([]int32, 0, tbl.NumRows())
	for _, chunk := range tbl.Column(idx[0]).Data().Chunks() {
		arr, ok := chunk.(*array.Int32)
		if !ok {
			return nil, fmt.Errorf("column %q is %s, want int32", name, chunk.DataType())
		}
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				values = append(values, 0)
				continue
			}
			values = append(values, arr.Value(i))
		}
	}
	return values, nil
}
