package usecase

import (
	"log/slog"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// ModerationService owns the asynchronous moderation path: enqueueing
// requests and reading task status.
type ModerationService struct {
	Adverts domain.AdvertisementRepository
	Tasks   domain.TaskRepository
	Queue   domain.Queue
	Cache   domain.TaskCache
}

// NewModerationService constructs a ModerationService.
func NewModerationService(adverts domain.AdvertisementRepository, tasks domain.TaskRepository, queue domain.Queue, cache domain.TaskCache) *ModerationService {
	return &ModerationService{Adverts: adverts, Tasks: tasks, Queue: queue, Cache: cache}
}

// Enqueue registers a moderation task for the listing and publishes a
// request to the bus. A listing already holding a pending task gets that
// task back instead of a second row, and the duplicate bus message is
// absorbed by the worker's claim.
func (s *ModerationService) Enqueue(ctx domain.Context, itemID int64) (domain.Task, error) {
	if _, err := s.Adverts.Select(ctx, itemID); err != nil {
		return domain.Task{}, err
	}

	task, err := s.Tasks.CreatePending(ctx, itemID)
	if err != nil {
		return domain.Task{}, err
	}

	if err := s.Queue.PublishModerationRequest(ctx, itemID); err != nil {
		return domain.Task{}, err
	}

	slog.Info("moderation request accepted",
		slog.Int64("task_id", task.ID),
		slog.Int64("item_id", itemID),
		slog.String("status", string(task.Status)),
	)
	return task, nil
}

// GetTaskStatus returns the status view for a task, serving repeated polls
// from the task cache. Pending entries expire quickly so a completed task
// becomes visible within seconds.
func (s *ModerationService) GetTaskStatus(ctx domain.Context, taskID int64) (domain.TaskStatusView, error) {
	if cached, err := s.Cache.Get(ctx, taskID); err == nil && cached != nil {
		slog.Info("task status cache hit", slog.Int64("task_id", taskID))
		return *cached, nil
	} else if err != nil {
		slog.Warn("task status cache read failed", slog.Int64("task_id", taskID), slog.Any("error", err))
	}

	task, err := s.Tasks.Get(ctx, taskID)
	if err != nil {
		return domain.TaskStatusView{}, err
	}

	view := domain.TaskStatusView{
		TaskID:      task.ID,
		Status:      task.Status,
		IsViolation: task.IsViolation,
		Probability: task.Probability,
	}
	if err := s.Cache.Set(ctx, view); err != nil {
		slog.Warn("task status cache write failed", slog.Int64("task_id", taskID), slog.Any("error", err))
	}
	return view, nil
}
