package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/brewery-data-etl/internal/config"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes gold rows to a Kafka topic, one message per location.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured aggregate topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAggregateTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, topic: cfg.KafkaAggregateTopic, logger: logger}
}

// Publish serializes the aggregates and sends them in a single WriteMessages
// call. Messages are keyed by location so a location always lands on the
// same partition.
func (w *Writer) Publish(ctx context.Context, aggs []domain.LocationAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	publishedAt := domain.Now().UTC()
	msgs := make([]kafkago.Message, len(aggs))
	for i := range aggs {
		msg, err := serializeToMessage(aggs[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d aggregates to %s: %w", len(msgs), w.topic, err)
	}
	w.logger.Info("aggregates published", "topic", w.topic, "count", len(msgs), "date_request", aggs[0].DateRequest)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a LocationAggregate into a Kafka message.
func serializeToMessage(agg domain.LocationAggregate, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(agg)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize location aggregate: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(agg.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "date_request", Value: []byte(agg.DateRequest)},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
