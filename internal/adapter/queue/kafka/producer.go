// Package kafka provides the moderation request bus.
//
// The producer publishes moderation requests keyed by listing id so all
// requests for one listing land on the same partition, and the worker
// consumes them with manual commits for at-least-once delivery. Poison
// messages and failed tasks are forwarded to a dead-letter topic.
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ad-moderation/internal/adapter/observability"
	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// ModerationRequest is the wire shape of one moderation request.
type ModerationRequest struct {
	ItemID    int64  `json:"item_id"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
}

// Producer wraps a Kafka producer and implements domain.Queue.
type Producer struct {
	client   *kgo.Client
	topic    string
	dlqTopic string
}

// NewProducer constructs a Producer and ensures both topics exist.
func NewProducer(brokers []string, topic, dlqTopic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.producer: no seed brokers provided")
	}

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(kotelService.Hooks()...),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("op=queue.producer: %w: %v", domain.ErrQueueUnavailable, err)
	}

	p := &Producer{client: client, topic: topic, dlqTopic: dlqTopic}
	if err := p.ensureTopics(); err != nil {
		// The broker may still be warming up; publishing retries cover it.
		slog.Warn("topic bootstrap failed", slog.Any("error", err))
	}
	return p, nil
}

// PublishModerationRequest publishes a request for the listing and waits for
// broker acknowledgement.
func (p *Producer) PublishModerationRequest(ctx domain.Context, itemID int64) error {
	msg := ModerationRequest{
		ItemID:    itemID,
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("op=queue.publish: marshal: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(itemID, 10)),
		Value: b,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("op=queue.publish: %w: %v", domain.ErrQueueUnavailable, err)
	}

	observability.TasksEnqueuedTotal.Inc()
	slog.Info("moderation request published",
		slog.Int64("item_id", itemID),
		slog.String("event_id", msg.EventID),
	)
	return nil
}

// PublishDeadLetter wraps the raw message in a dead-letter envelope and
// publishes it to the DLQ topic.
func (p *Producer) PublishDeadLetter(ctx domain.Context, raw []byte, errorMessage string) error {
	envelope, err := BuildDeadLetter(raw, errorMessage, time.Now())
	if err != nil {
		return fmt.Errorf("op=queue.dlq: %w", err)
	}
	record := &kgo.Record{Topic: p.dlqTopic, Value: envelope}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("op=queue.dlq: %w: %v", domain.ErrQueueUnavailable, err)
	}
	observability.DLQMessagesTotal.Inc()
	return nil
}

// Ping checks broker connectivity, for readiness probes.
func (p *Producer) Ping(ctx domain.Context) error {
	return p.client.Ping(ctx)
}

// Close shuts down the underlying client.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
