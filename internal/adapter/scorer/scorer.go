// Package scorer implements the violation scorer as a small logistic model
// over listing features. The weights live in a YAML artifact next to the
// binary so they can be swapped without a rebuild; a missing artifact is
// initialized with the built-in defaults on first load.
package scorer

import (
	"errors"
	"fmt"
	"math"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// Weights are the per-feature coefficients of the logistic model.
type Weights struct {
	VerifiedSeller float64 `yaml:"verified_seller"`
	ImagesQty      float64 `yaml:"images_qty"`
	DescriptionLen float64 `yaml:"description_len"`
	Category       float64 `yaml:"category"`
}

// Model is the serialized scoring artifact.
type Model struct {
	Version int     `yaml:"version"`
	Bias    float64 `yaml:"bias"`
	Weights Weights `yaml:"weights"`
}

func defaultModel() Model {
	return Model{
		Version: 1,
		Bias:    0.25,
		Weights: Weights{
			VerifiedSeller: -1.2,
			ImagesQty:      -0.6,
			DescriptionLen: -0.4,
			Category:       0.3,
		},
	}
}

// LogisticScorer scores listings with a loaded model. The zero value is not
// usable; construct it through LoadOrInit.
type LogisticScorer struct {
	model *Model
}

// LoadOrInit loads the model artifact from path, writing the default
// artifact first when none exists yet.
func LoadOrInit(path string) (*LogisticScorer, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		m := defaultModel()
		out, merr := yaml.Marshal(m)
		if merr != nil {
			return nil, fmt.Errorf("op=scorer.load: %w: %v", domain.ErrScorerNotLoaded, merr)
		}
		if werr := os.WriteFile(path, out, 0o644); werr != nil {
			return nil, fmt.Errorf("op=scorer.load: %w: %v", domain.ErrScorerNotLoaded, werr)
		}
		return &LogisticScorer{model: &m}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=scorer.load: %w: %v", domain.ErrScorerNotLoaded, err)
	}

	var m Model
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("op=scorer.load: %w: %v", domain.ErrScorerNotLoaded, err)
	}
	return &LogisticScorer{model: &m}, nil
}

// PredictProbability returns the probability in [0,1] that the listing
// violates the moderation rules.
func (s *LogisticScorer) PredictProbability(ad domain.Advertisement) (float64, error) {
	if s == nil || s.model == nil {
		return 0, fmt.Errorf("op=scorer.predict: %w", domain.ErrScorerNotLoaded)
	}

	f := Features(ad)
	m := s.model
	z := m.Bias +
		m.Weights.VerifiedSeller*f[0] +
		m.Weights.ImagesQty*f[1] +
		m.Weights.DescriptionLen*f[2] +
		m.Weights.Category*f[3]

	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("op=scorer.predict: %w: score %v out of range", domain.ErrScorerFailed, p)
	}
	return p, nil
}

// Features builds the model input vector for a listing: seller
// verification, image count capped at ten, description length scaled by a
// thousand characters, and category scaled by a hundred. Description length
// counts characters, not bytes, so non-ASCII text scores the same as ASCII.
func Features(ad domain.Advertisement) [4]float64 {
	return [4]float64{
		boolFeature(ad.IsVerifiedSeller),
		math.Min(float64(ad.ImagesQty), 10) / 10,
		float64(utf8.RuneCountInString(ad.Description)) / 1000,
		float64(ad.Category) / 100,
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
