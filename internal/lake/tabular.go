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

// TabularSchema is the silver table: date_request, the brewery fields in
// schema order, then location. Every column is nullable text.
var TabularSchema = buildTabularSchema(true)

// tabularFileSchema is what a silver partition file holds; location lives in
// the directory name.
var tabularFileSchema = buildTabularSchema(false)

func buildTabularSchema(withLocation bool) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(domain.BreweryFields)+2)
	fields = append(fields, arrow.Field{Name: DateRequestColumn, Type: arrow.BinaryTypes.String, Nullable: true})
	for _, f := range domain.BreweryFields {
		fields = append(fields, arrow.Field{Name: f.Name, Type: arrow.BinaryTypes.String, Nullable: f.Nullable})
	}
	if withLocation {
		fields = append(fields, arrow.Field{Name: LocationColumn, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// NewTabularTable builds the in-memory silver table. The caller owns the
// returned table and must Release it.
func NewTabularTable(mem memory.Allocator, records []domain.NormalizedRecord) arrow.Table {
	b := array.NewRecordBuilder(mem, TabularSchema)
	defer b.Release()

	for i := range records {
		r := &records[i]
		b.Field(0).(*array.StringBuilder).Append(r.DateRequest)
		for j, f := range domain.BreweryFields {
			appendNullable(b.Field(j+1).(*array.StringBuilder), f.Get(&r.BreweryRecord))
		}
		b.Field(len(domain.BreweryFields) + 1).(*array.StringBuilder).Append(r.Location)
	}

	rec := b.NewRecord()
	defer rec.Release()
	return array.NewTableFromRecords(TabularSchema, []arrow.Record{rec})
}

func appendNullable(b *array.StringBuilder, v *string) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

// TabularStats describes one silver write.
type TabularStats struct {
	Rows       int64
	Partitions []string // distinct locations, in first-seen order
	Bytes      int64
}

// TabularWriter writes the silver layer partitioned by location.
type TabularWriter struct {
	store  blobstore.Store
	mem    memory.Allocator
	logger *slog.Logger
}

// NewTabularWriter creates a silver writer over store.
func NewTabularWriter(store blobstore.Store, mem memory.Allocator, logger *slog.Logger) *TabularWriter {
	return &TabularWriter{store: store, mem: mem, logger: logger}
}

// Write replaces the silver leaf of dateRequest with one Parquet file per
// distinct location. An empty table leaves a schema-only file at the leaf
// root and no partitions. The table is read, never modified or released.
func (w *TabularWriter) Write(ctx context.Context, dateRequest string, tbl arrow.Table) (TabularStats, error) {
	leaf := TabularLeaf(dateRequest)

	columns, err := stringColumns(tbl, TabularSchema)
	if err != nil {
		return TabularStats{}, &domain.WriteError{Path: w.store.URL(leaf), Err: err}
	}
	locations := columns[len(columns)-1]

	order, rowsByLocation, err := groupRows(locations)
	if err != nil {
		return TabularStats{}, &domain.WriteError{Path: w.store.URL(leaf), Err: err}
	}

	files := make(map[string][]byte, len(order)+1)
	stats := TabularStats{Rows: tbl.NumRows(), Partitions: order}

	if len(order) == 0 {
		data, err := encodeParquet(tabularFileSchema)
		if err != nil {
			return TabularStats{}, &domain.WriteError{Path: w.store.URL(leaf), Err: err}
		}
		files[partFileName] = data
	}

	for _, loc := range order {
		rec := w.partitionRecord(columns[:len(columns)-1], rowsByLocation[loc])
		data, err := encodeParquet(tabularFileSchema, rec)
		rec.Release()
		if err != nil {
			return TabularStats{}, &domain.WriteError{Path: w.store.URL(TabularPartition(dateRequest, loc)), Err: err}
		}
		files[PartitionSegment(LocationColumn, loc)+"/"+partFileName] = data
	}

	for _, data := range files {
		stats.Bytes += int64(len(data))
	}
	if err := replaceLeaf(ctx, w.store, leaf, files); err != nil {
		return TabularStats{}, err
	}

	w.logger.Info("tabular layer written",
		"date_request", dateRequest,
		"path", w.store.URL(leaf),
		"rows", stats.Rows,
		"partitions", len(order),
	)
	return stats, nil
}

// partitionRecord gathers the given rows of the file columns into a record.
func (w *TabularWriter) partitionRecord(columns [][]*string, rows []int) arrow.Record {
	b := array.NewRecordBuilder(w.mem, tabularFileSchema)
	defer b.Release()

	for c, values := range columns {
		sb := b.Field(c).(*array.StringBuilder)
		sb.Reserve(len(rows))
		for _, r := range rows {
			appendNullable(sb, values[r])
		}
	}
	return b.NewRecord()
}

// groupRows buckets row indices by location, keeping first-seen order.
func groupRows(locations []*string) ([]string, map[string][]int, error) {
	var order []string
	rows := make(map[string][]int)
	for i, loc := range locations {
		if loc == nil {
			return nil, nil, fmt.Errorf("row %d has a null %s", i, LocationColumn)
		}
		if _, ok := rows[*loc]; !ok {
			order = append(order, *loc)
		}
		rows[*loc] = append(rows[*loc], i)
	}
	return order, rows, nil
}

// Observations projects the columns aggregation needs out of a silver table.
func Observations(tbl arrow.Table) ([]domain.Observation, error) {
	dates, err := stringColumn(tbl, DateRequestColumn)
	if err != nil {
		return nil, err
	}
	locations, err := stringColumn(tbl, LocationColumn)
	if err != nil {
		return nil, err
	}
	types, err := stringColumn(tbl, "brewery_type")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Observation, len(dates))
	for i := range dates {
		if dates[i] == nil || locations[i] == nil {
			return nil, fmt.Errorf("row %d: %s and %s must not be null", i, DateRequestColumn, LocationColumn)
		}
		out[i] = domain.Observation{
			DateRequest: *dates[i],
			Location:    *locations[i],
			BreweryType: types[i],
		}
	}
	return out, nil
}

// Records converts a silver table back into normalized records.
func Records(tbl arrow.Table) ([]domain.NormalizedRecord, error) {
	columns, err := stringColumns(tbl, TabularSchema)
	if err != nil {
		return nil, err
	}

	n := int(tbl.NumRows())
	out := make([]domain.NormalizedRecord, n)
	last := len(columns) - 1
	for i := 0; i < n; i++ {
		r := &out[i]
		if v := columns[0][i]; v != nil {
			r.DateRequest = *v
		}
		for j, f := range domain.BreweryFields {
			f.Set(&r.BreweryRecord, columns[j+1][i])
		}
		if v := columns[last][i]; v != nil {
			r.Location = *v
		}
	}
	return out, nil
}

// stringColumns flattens the named text columns of tbl, in schema order.
func stringColumns(tbl arrow.Table, schema *arrow.Schema) ([][]*string, error) {
	out := make([][]*string, schema.NumFields())
	for i, f := range schema.Fields() {
		col, err := stringColumn(tbl, f.Name)
		if err != nil {
			return nil, err
		}
		out[i] = col
	}
	return out, nil
}

// stringColumn flattens one text column across chunks; nulls become nil.
func stringColumn(tbl arrow.Table, name string) ([]*string, error) {
	idx := tbl.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("table has no column %q", name)
	}

	values := make([]*string, 0, tbl.NumRows())
	for _, chunk := range tbl.Column(idx[0]).Data().Chunks() {
		arr, ok := chunk.(*array.String)
		if !ok {
			return nil, fmt.Errorf("column %q is %s, want utf8", name, chunk.DataType())
		}
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				values = append(values, nil)
				continue
			}
			v := arr.Value(i)
			values = append(values, &v)
		}
	}
	return values, nil
}
