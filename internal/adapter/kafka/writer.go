package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/ens-meteogram/internal/config"
	"github.com/couchcryptid/ens-meteogram/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer announces rendered meteograms on a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured meteogram topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish sends one message per meteogram in a single WriteMessages call.
// Messages are keyed by city so every city's history stays on one partition.
func (w *Writer) Publish(ctx context.Context, meteograms []domain.Meteogram) error {
	if len(meteograms) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(meteograms))
	for i := range meteograms {
		msg, err := serializeToMessage(meteograms[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish meteograms: %w", err)
	}
	w.logger.Debug("published meteograms", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Meteogram into a Kafka message.
func serializeToMessage(m domain.Meteogram) (kafkago.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize meteogram: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(m.City),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run", Value: []byte(m.Run)},
			{Key: "rendered_at", Value: []byte(m.RenderedAt.Format(time.RFC3339))},
		},
	}, nil
}
