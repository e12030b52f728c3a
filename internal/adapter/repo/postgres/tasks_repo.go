package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// TaskRepo persists moderation tasks and performs their state transitions.
type TaskRepo struct{ Pool PgxPool }

// NewTaskRepo constructs a TaskRepo with the given pool.
func NewTaskRepo(p PgxPool) *TaskRepo { return &TaskRepo{Pool: p} }

const taskColumns = `id, item_id, status, is_violation, probability, error_message, created_at, processed_at`

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.ItemID, &t.Status, &t.IsViolation, &t.Probability, &t.ErrorMessage, &t.CreatedAt, &t.ProcessedAt)
	return t, err
}

// CreatePending returns a reusable task for the listing or inserts a new
// pending row. A pending task is preferred over a completed one; ties break
// on the highest id. The rare race against the partial unique index is
// resolved by re-reading and retrying the insert at most once.
func (r *TaskRepo) CreatePending(ctx domain.Context, itemID int64) (domain.Task, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.CreatePending")
	defer span.End()

	for attempt := 0; ; attempt++ {
		t, err := r.reusable(ctx, itemID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, fmt.Errorf("op=task.create_pending: %w: %v", domain.ErrStorageUnavailable, err)
		}

		t, err = r.insertPending(ctx, itemID)
		if err == nil {
			return t, nil
		}
		// Another producer won the partial-unique race; its row is visible
		// now, so one more read-then-insert round settles it.
		if isUniqueViolation(err) && attempt == 0 {
			continue
		}
		return domain.Task{}, fmt.Errorf("op=task.create_pending: %w: %v", domain.ErrStorageUnavailable, err)
	}
}

func (r *TaskRepo) reusable(ctx domain.Context, itemID int64) (domain.Task, error) {
	q := `SELECT ` + taskColumns + `
FROM moderation_results
WHERE item_id = $1 AND status IN ('pending', 'completed')
ORDER BY (status = 'pending') DESC, id DESC
LIMIT 1`
	return scanTask(r.Pool.QueryRow(ctx, q, itemID))
}

func (r *TaskRepo) insertPending(ctx domain.Context, itemID int64) (domain.Task, error) {
	q := `INSERT INTO moderation_results (item_id, status)
VALUES ($1, 'pending')
RETURNING ` + taskColumns
	return scanTask(r.Pool.QueryRow(ctx, q, itemID))
}

// Get loads a task by id.
func (r *TaskRepo) Get(ctx domain.Context, taskID int64) (domain.Task, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Get")
	defer span.End()
	q := `SELECT ` + taskColumns + ` FROM moderation_results WHERE id = $1`
	t, err := scanTask(r.Pool.QueryRow(ctx, q, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, fmt.Errorf("op=task.get: %w", domain.ErrNotFound)
		}
		return domain.Task{}, fmt.Errorf("op=task.get: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return t, nil
}

// ClaimAndComplete claims the oldest pending task for the listing and marks
// it completed. The skip-locked select lets workers on distinct listings run
// in parallel while a redelivered duplicate finds no row and returns 0.
func (r *TaskRepo) ClaimAndComplete(ctx domain.Context, itemID int64, isViolation bool, probability float64) (int64, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.ClaimAndComplete")
	defer span.End()

	q := `
WITH pending_task AS (
	SELECT id
	FROM moderation_results
	WHERE item_id = $1 AND status = 'pending'
	ORDER BY id ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE moderation_results AS mr
SET
	status = 'completed',
	is_violation = $2,
	probability = $3,
	error_message = NULL,
	processed_at = NOW()
FROM pending_task
WHERE mr.id = pending_task.id
RETURNING mr.id`

	return r.claim(ctx, "task.claim_complete", q, itemID, isViolation, probability)
}

// ClaimAndFail claims the oldest pending task for the listing and marks it
// failed with the given message, truncated to the persisted bound.
func (r *TaskRepo) ClaimAndFail(ctx domain.Context, itemID int64, errorMessage string) (int64, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.ClaimAndFail")
	defer span.End()

	q := `
WITH pending_task AS (
	SELECT id
	FROM moderation_results
	WHERE item_id = $1 AND status = 'pending'
	ORDER BY id ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE moderation_results AS mr
SET
	status = 'failed',
	is_violation = NULL,
	probability = NULL,
	error_message = $2,
	processed_at = NOW()
FROM pending_task
WHERE mr.id = pending_task.id
RETURNING mr.id`

	return r.claim(ctx, "task.claim_fail", q, itemID, TruncateErrorMessage(errorMessage))
}

func (r *TaskRepo) claim(ctx domain.Context, op, query string, args ...any) (int64, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("op=%s: %w: %v", op, domain.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var taskID int64
	err = tx.QueryRow(ctx, query, args...).Scan(&taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No pending row: already handled by another worker or closed.
			if cerr := tx.Commit(ctx); cerr != nil {
				return 0, fmt.Errorf("op=%s: %w: %v", op, domain.ErrStorageUnavailable, cerr)
			}
			return 0, nil
		}
		return 0, fmt.Errorf("op=%s: %w: %v", op, domain.ErrStorageUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("op=%s: %w: %v", op, domain.ErrStorageUnavailable, err)
	}
	return taskID, nil
}

// MarkEventProcessed records a bus event id after a terminal transition.
// It reports false when the id was already recorded.
func (r *TaskRepo) MarkEventProcessed(ctx domain.Context, eventID string, itemID, taskID int64) (bool, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.MarkEventProcessed")
	defer span.End()
	q := `INSERT INTO processed_events (event_id, item_id, task_id)
VALUES ($1, $2, $3)
ON CONFLICT (event_id) DO NOTHING`
	tag, err := r.Pool.Exec(ctx, q, eventID, itemID, taskID)
	if err != nil {
		return false, fmt.Errorf("op=task.mark_event: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsEventProcessed reports whether a bus event id was already handled.
func (r *TaskRepo) IsEventProcessed(ctx domain.Context, eventID string) (bool, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.IsEventProcessed")
	defer span.End()
	q := `SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`
	var processed bool
	if err := r.Pool.QueryRow(ctx, q, eventID).Scan(&processed); err != nil {
		return false, fmt.Errorf("op=task.is_event_processed: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return processed, nil
}

// TruncateErrorMessage bounds a task error message to the persisted limit.
func TruncateErrorMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= domain.MaxErrorMessageLen {
		return msg
	}
	return string(runes[:domain.MaxErrorMessageLen])
}
