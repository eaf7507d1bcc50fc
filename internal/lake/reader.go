package lake

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
)

// LeafComplete reports whether leaf carries a success marker.
func LeafComplete(ctx context.Context, store blobstore.Store, leaf string) (bool, error) {
	_, err := store.Get(ctx, leaf+SuccessMarker)
	if errors.Is(err, blobstore.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReadTable loads every Parquet file under prefix into one table shaped like
// schema. Columns a file lacks are filled from its col=value directories, or
// with nulls when the path has no such partition either. The caller must
// Release the result.
func ReadTable(ctx context.Context, store blobstore.Store, mem memory.Allocator, prefix string, schema *arrow.Schema) (arrow.Table, error) {
	keys, err := parquetKeys(ctx, store, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", store.URL(prefix), err)
	}

	var records []arrow.Record
	defer func() {
		for _, r := range records {
			r.Release()
		}
	}()

	for _, key := range keys {
		data, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", store.URL(key), err)
		}
		recs, err := readFile(ctx, mem, data, schema, partitionValues(prefix, key))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", store.URL(key), err)
		}
		records = append(records, recs...)
	}

	return array.NewTableFromRecords(schema, records), nil
}

// ReadTabular loads the silver table of one capture.
func ReadTabular(ctx context.Context, store blobstore.Store, mem memory.Allocator, dateRequest string) (arrow.Table, error) {
	return ReadTable(ctx, store, mem, TabularLeaf(dateRequest), TabularSchema)
}

// ReadAnalytical loads the gold table of one capture.
func ReadAnalytical(ctx context.Context, store blobstore.Store, mem memory.Allocator, dateRequest string) (arrow.Table, error) {
	return ReadTable(ctx, store, mem, AnalyticalLeaf(dateRequest), AnalyticalSchema)
}

func readFile(ctx context.Context, mem memory.Allocator, data []byte, schema *arrow.Schema, partitions map[string]string) ([]arrow.Record, error) {
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data), parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, -1)
	defer tr.Release()

	var out []arrow.Record
	for tr.Next() {
		rec, err := conform(mem, tr.Record(), schema, partitions)
		if err != nil {
			for _, r := range out {
				r.Release()
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// conform rebuilds rec with the columns of schema, in schema order.
func conform(mem memory.Allocator, rec arrow.Record, schema *arrow.Schema, partitions map[string]string) (arrow.Record, error) {
	n := int(rec.NumRows())
	cols := make([]arrow.Array, schema.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i, f := range schema.Fields() {
		if idx := rec.Schema().FieldIndices(f.Name); len(idx) > 0 {
			col := rec.Column(idx[0])
			if !arrow.TypeEqual(col.DataType(), f.Type) {
				return nil, fmt.Errorf("column %q is %s, want %s", f.Name, col.DataType(), f.Type)
			}
			col.Retain()
			cols[i] = col
			continue
		}

		value, ok := partitions[f.Name]
		if !ok || f.Type.ID() != arrow.STRING {
			cols[i] = array.MakeArrayOfNull(mem, f.Type, n)
			continue
		}
		cols[i] = constantString(mem, value, n)
	}

	return array.NewRecord(schema, cols, int64(n)), nil
}

func constantString(mem memory.Allocator, value string, n int) arrow.Array {
	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		b.Append(value)
	}
	return b.NewArray()
}
