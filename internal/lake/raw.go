package lake

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/parquet-go/parquet-go"
)

// RawCaptureRow is the single bronze row of a capture.
type RawCaptureRow struct {
	DataRequest string `parquet:"data_request"`
	Response    string `parquet:"response"`
}

// RawWriter archives captures in the bronze layer.
type RawWriter struct {
	store  blobstore.Store
	logger *slog.Logger
}

// NewRawWriter creates a bronze writer over store.
func NewRawWriter(store blobstore.Store, logger *slog.Logger) *RawWriter {
	return &RawWriter{store: store, logger: logger}
}

// Exists reports whether a finished bronze partition for dateRequest is
// already in storage.
func (w *RawWriter) Exists(ctx context.Context, dateRequest string) (bool, error) {
	return LeafComplete(ctx, w.store, RawLeaf(dateRequest))
}

// Write replaces the bronze partition of the capture with one row holding the
// timestamp and the untouched payload. It returns the bytes written.
func (w *RawWriter) Write(ctx context.Context, capture domain.Capture) (int64, error) {
	leaf := RawLeaf(capture.Timestamp)

	var buf bytes.Buffer
	rows := []RawCaptureRow{{DataRequest: capture.Timestamp, Response: capture.Payload}}
	if err := parquet.Write(&buf, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		return 0, &domain.WriteError{Path: w.store.URL(leaf), Err: fmt.Errorf("encode raw capture: %w", err)}
	}

	if err := replaceLeaf(ctx, w.store, leaf, map[string][]byte{partFileName: buf.Bytes()}); err != nil {
		return 0, err
	}

	w.logger.Info("raw capture written",
		"date_request", capture.Timestamp,
		"path", w.store.URL(leaf),
		"payload_bytes", len(capture.Payload),
	)
	return int64(buf.Len()), nil
}

// ReadRaw loads the bronze rows of one capture.
func ReadRaw(ctx context.Context, store blobstore.Store, dateRequest string) ([]RawCaptureRow, error) {
	keys, err := parquetKeys(ctx, store, RawLeaf(dateRequest))
	if err != nil {
		return nil, err
	}

	var rows []RawCaptureRow
	for _, key := range keys {
		data, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		part, err := parquet.Read[RawCaptureRow](bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", store.URL(key), err)
		}
		rows = append(rows, part...)
	}
	return rows, nil
}
