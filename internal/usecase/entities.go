package usecase

import (
	"log/slog"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// EntityService manages the seller and listing lifecycle around the
// moderation core.
type EntityService struct {
	Users       domain.UserRepository
	Adverts     domain.AdvertisementRepository
	Predictions domain.PredictionCache
	TaskCache   domain.TaskCache
}

// NewEntityService constructs an EntityService.
func NewEntityService(users domain.UserRepository, adverts domain.AdvertisementRepository, predictions domain.PredictionCache, taskCache domain.TaskCache) *EntityService {
	return &EntityService{Users: users, Adverts: adverts, Predictions: predictions, TaskCache: taskCache}
}

// CreateUser registers a seller account with an explicit id.
func (s *EntityService) CreateUser(ctx domain.Context, id int64, isVerifiedSeller bool) (domain.User, error) {
	return s.Users.Create(ctx, id, isVerifiedSeller)
}

// CreateAdvertisement registers a listing owned by an existing seller.
func (s *EntityService) CreateAdvertisement(ctx domain.Context, ad domain.Advertisement) (domain.Advertisement, error) {
	return s.Adverts.Create(ctx, ad)
}

// CloseAdvertisement deletes the listing with its task rows, then drops the
// cached prediction and every cached task status. Cache invalidation is
// best effort: entries that survive expire on their own TTL.
func (s *EntityService) CloseAdvertisement(ctx domain.Context, itemID int64) (domain.CloseResult, error) {
	res, err := s.Adverts.Close(ctx, itemID)
	if err != nil {
		return domain.CloseResult{}, err
	}

	if err := s.Predictions.Delete(ctx, itemID); err != nil {
		slog.Warn("prediction cache invalidation failed", slog.Int64("item_id", itemID), slog.Any("error", err))
	}
	for _, taskID := range res.TaskIDs {
		if err := s.TaskCache.Delete(ctx, taskID); err != nil {
			slog.Warn("task cache invalidation failed",
				slog.Int64("task_id", taskID),
				slog.Int64("item_id", itemID),
				slog.Any("error", err),
			)
		}
	}

	slog.Info("advertisement closed",
		slog.Int64("item_id", res.ItemID),
		slog.Int("deleted_tasks", len(res.TaskIDs)),
	)
	return res, nil
}
