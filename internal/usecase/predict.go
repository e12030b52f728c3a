// Package usecase wires the domain ports into the operations the HTTP
// surface exposes. Services hold only ports, so adapters stay swappable in
// tests.
package usecase

import (
	"log/slog"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// PredictService scores listings synchronously. Validity is a business
// rule, not a model output: verified sellers publish valid listings.
type PredictService struct {
	Adverts domain.AdvertisementRepository
	Scorer  domain.Scorer
	Cache   domain.PredictionCache
}

// NewPredictService constructs a PredictService.
func NewPredictService(adverts domain.AdvertisementRepository, sc domain.Scorer, cache domain.PredictionCache) *PredictService {
	return &PredictService{Adverts: adverts, Scorer: sc, Cache: cache}
}

// Predict scores an advertisement supplied by the caller. Nothing is
// persisted or cached; the listing does not need to exist.
func (s *PredictService) Predict(ad domain.Advertisement) (domain.Prediction, error) {
	probability, err := s.Scorer.PredictProbability(ad)
	if err != nil {
		return domain.Prediction{}, err
	}
	return domain.Prediction{IsValid: ad.IsVerifiedSeller, Probability: probability}, nil
}

// SimplePredict scores a stored listing by id, serving repeated calls from
// the prediction cache.
func (s *PredictService) SimplePredict(ctx domain.Context, itemID int64) (domain.Prediction, error) {
	if cached, err := s.Cache.Get(ctx, itemID); err == nil && cached != nil {
		slog.Info("prediction cache hit", slog.Int64("item_id", itemID))
		return *cached, nil
	} else if err != nil {
		slog.Warn("prediction cache read failed", slog.Int64("item_id", itemID), slog.Any("error", err))
	}

	ad, err := s.Adverts.Select(ctx, itemID)
	if err != nil {
		return domain.Prediction{}, err
	}
	p, err := s.Predict(ad)
	if err != nil {
		return domain.Prediction{}, err
	}

	if err := s.Cache.Set(ctx, itemID, p); err != nil {
		slog.Warn("prediction cache write failed", slog.Int64("item_id", itemID), slog.Any("error", err))
	}
	return p, nil
}
