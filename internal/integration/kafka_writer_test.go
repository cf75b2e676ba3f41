//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/ens-meteogram/internal/adapter/kafka"
	"github.com/couchcryptid/ens-meteogram/internal/config"
	"github.com/couchcryptid/ens-meteogram/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "test-meteograms"

// TestKafkaWriterPublish verifies that published meteograms arrive keyed by
// city with the run and rendered_at headers.
func TestKafkaWriterPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	renderedAt := time.Date(2024, 3, 1, 8, 12, 0, 0, time.UTC)
	sent := []domain.Meteogram{
		{ID: "m-1", City: "Paris", Run: "20240301 00 UTC", Coordinates: domain.Coordinates{Lon: 2.35, Lat: 48.85},
			ImagePath: "/images/meteogram_Paris.png", RenderedAt: renderedAt},
		{ID: "m-2", City: "Hamburg", Run: "20240301 00 UTC", Coordinates: domain.Coordinates{Lon: 9.99, Lat: 53.55},
			ImagePath: "/images/meteogram_Hamburg.png", RenderedAt: renderedAt},
	}
	require.NoError(t, writer.Publish(ctx, sent))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = reader.Close() })

	got := make(map[string]domain.Meteogram)
	for range sent {
		msg, err := reader.ReadMessage(ctx)
		require.NoError(t, err)

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, "20240301 00 UTC", headers["run"])
		assert.Equal(t, "2024-03-01T08:12:00Z", headers["rendered_at"])

		var m domain.Meteogram
		require.NoError(t, json.Unmarshal(msg.Value, &m))
		assert.Equal(t, string(msg.Key), m.City)
		got[m.City] = m
	}

	require.Len(t, got, 2)
	assert.Equal(t, sent[0], got["Paris"])
	assert.Equal(t, sent[1], got["Hamburg"])
}
