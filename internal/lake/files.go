package lake

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
)

// replaceLeaf overwrites a leaf directory: everything under it is removed,
// the files are written in name order, then the success marker.
func replaceLeaf(ctx context.Context, store blobstore.Store, leaf string, files map[string][]byte) error {
	if err := store.DeletePrefix(ctx, leaf); err != nil {
		return &domain.WriteError{Path: store.URL(leaf), Err: err}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := store.Put(ctx, leaf+name, files[name]); err != nil {
			return &domain.WriteError{Path: store.URL(leaf + name), Err: err}
		}
	}
	if err := store.Put(ctx, leaf+SuccessMarker, nil); err != nil {
		return &domain.WriteError{Path: store.URL(leaf + SuccessMarker), Err: err}
	}
	return nil
}

// parquetKeys lists the Parquet files under prefix.
func parquetKeys(ctx context.Context, store blobstore.Store, prefix string) ([]string, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, parquetSuffix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func writerProperties() *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy(createdBy),
	)
}

// encodeParquet serializes records sharing schema into one Parquet file. With
// no records the file carries the schema and zero rows.
func encodeParquet(schema *arrow.Schema, records ...arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	w, err := pqarrow.NewFileWriter(schema, &buf, writerProperties(), pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	for _, rec := range records {
		if rec.NumRows() == 0 {
			continue
		}
		if err := w.Write(rec); err != nil {
			w.Close()
			return nil, fmt.Errorf("write parquet record: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
