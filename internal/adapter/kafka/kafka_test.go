package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/brewery-data-etl/internal/config"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testWriter(fw *fakeWriter) *Writer {
	return &Writer{writer: fw, topic: "brewery-location-aggregates", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	agg := domain.LocationAggregate{
		DateRequest: "20240101_120000",
		Location:    "USA-CA",
		TotMicro:    1,
		TotOther:    1,
		TotBrewery:  2,
	}

	msg, err := serializeToMessage(agg, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("USA-CA"), msg.Key)
	assert.JSONEq(t, `{"date_request":"20240101_120000","location":"USA-CA",
		"tot_brewpub":0,"tot_proprietor":0,"tot_contract":0,"tot_closed":0,
		"tot_micro":1,"tot_large":0,"tot_other":1,"tot_brewery":2}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "date_request", msg.Headers[0].Key)
	assert.Equal(t, []byte("20240101_120000"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestWriter_Publish(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	fw := &fakeWriter{}
	w := testWriter(fw)

	err := w.Publish(context.Background(), []domain.LocationAggregate{
		{DateRequest: "20240101_120000", Location: "USA-CA", TotBrewery: 2},
		{DateRequest: "20240101_120000", Location: "USA-OR", TotBrewery: 5},
	})
	require.NoError(t, err)

	require.Len(t, fw.msgs, 2)
	assert.Equal(t, []byte("USA-CA"), fw.msgs[0].Key)
	assert.Equal(t, []byte("USA-OR"), fw.msgs[1].Key)
	assert.Equal(t, []byte("2024-01-01T12:00:00Z"), fw.msgs[1].Headers[1].Value)

	require.NoError(t, w.Close())
	assert.True(t, fw.closed)
}

func TestWriter_PublishEmptyIsNoop(t *testing.T) {
	fw := &fakeWriter{err: errors.New("should not be called")}
	require.NoError(t, testWriter(fw).Publish(context.Background(), nil))
}

func TestWriter_PublishError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("leader not available")}
	err := testWriter(fw).Publish(context.Background(), []domain.LocationAggregate{{Location: "USA-CA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brewery-location-aggregates")
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewWriter(t *testing.T) {
	w := NewWriter(&config.Config{
		KafkaBrokers:        []string{"localhost:9092"},
		KafkaAggregateTopic: "aggs",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	kw, ok := w.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "aggs", kw.Topic)
	assert.Equal(t, kafkago.RequireAll, kw.RequiredAcks)
	require.NoError(t, w.Close())
}
