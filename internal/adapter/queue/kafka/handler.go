package kafka

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ad-moderation/internal/adapter/observability"
	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// Failure messages persisted on the task and carried in the DLQ envelope.
const (
	msgInvalidPayload = "Invalid message payload"
	msgAdvertMissing  = "Advertisement not found"
	msgDatabaseRead   = "Database read failed"
	msgPrediction     = "Prediction failed"
	msgResultCommit   = "Failed to update moderation result"
)

// DeadLetterPublisher forwards unprocessable messages to the DLQ topic.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx domain.Context, raw []byte, errorMessage string) error
}

// Handler processes one moderation request end to end: resolve the listing,
// score it, and transition its oldest pending task. Every failure lands the
// task in failed state (when one can be claimed) and the message in the DLQ.
type Handler struct {
	Adverts domain.AdvertisementRepository
	Tasks   domain.TaskRepository
	Scorer  domain.Scorer
	DLQ     DeadLetterPublisher
}

// NewHandler constructs a Handler.
func NewHandler(adverts domain.AdvertisementRepository, tasks domain.TaskRepository, sc domain.Scorer, dlq DeadLetterPublisher) *Handler {
	return &Handler{Adverts: adverts, Tasks: tasks, Scorer: sc, DLQ: dlq}
}

// Handle processes one raw bus message. A nil return means the message is
// fully accounted for (completed, failed, discarded, or dead-lettered) and
// may be committed.
func (h *Handler) Handle(ctx domain.Context, raw []byte) error {
	tracer := otel.Tracer("worker.handler")
	ctx, span := tracer.Start(ctx, "handler.Handle")
	defer span.End()

	msg, ok := decodeRequest(raw)
	if !ok {
		slog.Warn("invalid moderation request", slog.String("payload", string(raw)))
		return h.DLQ.PublishDeadLetter(ctx, raw, msgInvalidPayload)
	}

	if msg.EventID != "" {
		processed, err := h.Tasks.IsEventProcessed(ctx, msg.EventID)
		if err != nil {
			// Dedup is best effort; the claim itself is idempotent.
			slog.Warn("event dedup check failed", slog.Any("error", err))
		} else if processed {
			slog.Info("duplicate event skipped",
				slog.String("event_id", msg.EventID),
				slog.Int64("item_id", msg.ItemID),
			)
			return nil
		}
	}

	ad, err := h.Adverts.Select(ctx, msg.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return h.fail(ctx, raw, msg, msgAdvertMissing)
		}
		return h.fail(ctx, raw, msg, composeError(msgDatabaseRead, err.Error()))
	}

	probability, err := h.Scorer.PredictProbability(ad)
	if err != nil {
		return h.fail(ctx, raw, msg, composeError(msgPrediction, err.Error()))
	}
	observability.ViolationProbability.Observe(probability)

	isViolation := probability >= domain.ViolationThreshold
	taskID, err := h.Tasks.ClaimAndComplete(ctx, msg.ItemID, isViolation, probability)
	if err != nil {
		return h.fail(ctx, raw, msg, composeError(msgResultCommit, err.Error()))
	}
	if taskID == 0 {
		// Redelivery or a closed listing; nothing left to moderate.
		observability.TasksDiscardedTotal.Inc()
		slog.Info("no pending task to claim, message discarded",
			slog.Int64("item_id", msg.ItemID),
			slog.String("event_id", msg.EventID),
		)
		return nil
	}

	observability.TasksCompletedTotal.Inc()
	h.recordEvent(ctx, msg, taskID)
	slog.Info("moderation task completed",
		slog.Int64("task_id", taskID),
		slog.Int64("item_id", msg.ItemID),
		slog.Bool("is_violation", isViolation),
		slog.Float64("probability", probability),
	)
	return nil
}

// fail transitions the pending task (when claimable) and forwards the raw
// message to the DLQ with the same error text.
func (h *Handler) fail(ctx domain.Context, raw []byte, msg ModerationRequest, errorMessage string) error {
	taskID, err := h.Tasks.ClaimAndFail(ctx, msg.ItemID, errorMessage)
	if err != nil {
		slog.Error("failed to mark task failed",
			slog.Int64("item_id", msg.ItemID),
			slog.Any("error", err),
		)
	} else if taskID != 0 {
		observability.TasksFailedTotal.Inc()
		h.recordEvent(ctx, msg, taskID)
		slog.Warn("moderation task failed",
			slog.Int64("task_id", taskID),
			slog.Int64("item_id", msg.ItemID),
			slog.String("error", errorMessage),
		)
	}
	return h.DLQ.PublishDeadLetter(ctx, raw, errorMessage)
}

func (h *Handler) recordEvent(ctx domain.Context, msg ModerationRequest, taskID int64) {
	if msg.EventID == "" {
		return
	}
	if _, err := h.Tasks.MarkEventProcessed(ctx, msg.EventID, msg.ItemID, taskID); err != nil {
		slog.Warn("failed to record processed event",
			slog.String("event_id", msg.EventID),
			slog.Any("error", err),
		)
	}
}

// decodeRequest parses a moderation request, requiring a JSON object whose
// item_id is a non-negative integer number. A quoted number, a fraction, or
// a missing field all make the message poison; no coercion.
func decodeRequest(raw []byte) (ModerationRequest, bool) {
	var in map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return ModerationRequest{}, false
	}
	// Trailing bytes after the object make the whole payload poison.
	if dec.More() {
		return ModerationRequest{}, false
	}
	num, ok := in["item_id"].(json.Number)
	if !ok {
		return ModerationRequest{}, false
	}
	itemID, err := num.Int64()
	if err != nil || itemID < 0 {
		return ModerationRequest{}, false
	}
	eventID, _ := in["event_id"].(string)
	return ModerationRequest{ItemID: itemID, EventID: eventID}, true
}

// composeError joins the failure category with the underlying detail.
func composeError(base, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return base
	}
	return base + ": " + detail
}
