package kafka

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// Consumer runs the moderation worker loop: poll, handle, commit. Offsets
// are committed per batch only after every record was accounted for, so a
// crash mid-batch redelivers and the idempotent claims absorb duplicates.
type Consumer struct {
	client  *kgo.Client
	handler *Handler
	groupID string
	topic   string
}

// NewConsumer constructs a group consumer reading the moderation topic from
// the earliest offset.
func NewConsumer(brokers []string, groupID, topic string, handler *Handler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.consumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=queue.consumer: missing group id")
	}

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(500 * time.Millisecond),
		kgo.SessionTimeout(30 * time.Second),
		kgo.WithHooks(kotelService.Hooks()...),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("op=queue.consumer: %w: %v", domain.ErrQueueUnavailable, err)
	}
	return &Consumer{client: client, handler: handler, groupID: groupID, topic: topic}, nil
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx domain.Context) error {
	slog.Info("moderation consumer started",
		slog.String("topic", c.topic),
		slog.String("group_id", c.groupID),
	)

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			slog.Info("moderation consumer stopping")
			return ctx.Err()
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err),
				)
			}
			wait := bo.NextBackOff()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		fetches.EachRecord(func(record *kgo.Record) {
			if err := c.handler.Handle(ctx, record.Value); err != nil {
				// The task row stays pending; a later request or listing
				// closure resolves it.
				slog.Error("record handling failed", slog.Any("error", err))
			}
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			slog.Error("offset commit failed", slog.Any("error", err))
		}
	}
}

// Close shuts down the underlying client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
