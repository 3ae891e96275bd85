// Package predict serves win probabilities from the latest trained bundle:
// single-runner scoring and whole-race ranking with confidence bands.
package predict

import (
	"fmt"
	"sort"

	"github.com/gallopml/gallop/pkg/artifact"
	"github.com/gallopml/gallop/pkg/dataset"
	"github.com/gallopml/gallop/pkg/logx"
)

// NotTrainedError means prediction was requested before any successful
// training run has been persisted
type NotTrainedError struct{}

func (e *NotTrainedError) Error() string {
	return "predict: no trained model available, run training first"
}

// BundleSource yields the current trained bundle; a nil bundle with a nil
// error is the untrained cold-start state
type BundleSource interface {
	LoadLatest() (*artifact.Bundle, error)
}

// Prediction is one runner's scored outcome
type Prediction struct {
	Probability  float64 `json:"probability"`
	Label        int     `json:"label"`
	Threshold    float64 `json:"threshold"`
	Champion     string  `json:"champion"`
	ModelVersion string  `json:"model_version"`
}

// Runner pairs a caller-side identifier with its raw feature record
type Runner struct {
	ID     string         `json:"id"`
	Record dataset.Record `json:"record"`
}

// RankedRunner is one entry of a race ranking, ordered by win probability
type RankedRunner struct {
	ID          string  `json:"id"`
	Rank        int     `json:"rank"`
	Probability float64 `json:"probability"`
	Confidence  string  `json:"confidence"`
}

// Predictor scores raw records through the persisted pipeline and champion
type Predictor struct {
	source BundleSource
	logger *logx.Logger
}

// New wraps a bundle source, normally the artifact store
func New(source BundleSource, logger *logx.Logger) *Predictor {
	return &Predictor{source: source, logger: logger}
}

// Predict scores a single runner record
func (p *Predictor) Predict(rec dataset.Record) (*Prediction, error) {
	bundle, err := p.bundle()
	if err != nil {
		return nil, err
	}
	prob, err := p.probability(bundle, rec)
	if err != nil {
		return nil, err
	}
	label := 0
	if prob >= bundle.Threshold {
		label = 1
	}
	return &Prediction{
		Probability:  prob,
		Label:        label,
		Threshold:    bundle.Threshold,
		Champion:     bundle.Champion,
		ModelVersion: bundle.Version,
	}, nil
}

// RankRace scores every runner in a race and returns them ordered by win
// probability, best first, with 1-based ranks and confidence bands
func (p *Predictor) RankRace(runners []Runner) ([]RankedRunner, error) {
	if len(runners) == 0 {
		return nil, fmt.Errorf("predict: race has no runners")
	}
	bundle, err := p.bundle()
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedRunner, 0, len(runners))
	for _, r := range runners {
		prob, err := p.probability(bundle, r.Record)
		if err != nil {
			return nil, fmt.Errorf("predict: runner %s: %w", r.ID, err)
		}
		ranked = append(ranked, RankedRunner{
			ID:          r.ID,
			Probability: prob,
			Confidence:  ConfidenceBand(prob),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Probability != ranked[j].Probability {
			return ranked[i].Probability > ranked[j].Probability
		}
		return ranked[i].ID < ranked[j].ID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	p.logger.Debug("race ranked",
		"runners", len(ranked),
		"top_id", ranked[0].ID,
		"top_probability", ranked[0].Probability,
	)
	return ranked, nil
}

func (p *Predictor) bundle() (*artifact.Bundle, error) {
	bundle, err := p.source.LoadLatest()
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, &NotTrainedError{}
	}
	return bundle, nil
}

// probability transforms one raw record through the fitted pipeline and
// scores it, falling back to the hard label for probability-less models
func (p *Predictor) probability(bundle *artifact.Bundle, rec dataset.Record) (float64, error) {
	x, err := bundle.Pipeline.TransformRecord(rec)
	if err != nil {
		return 0, err
	}
	X := [][]float64{x}
	if probs := bundle.Model.PredictProba(X); probs != nil {
		return probs[0], nil
	}
	return float64(bundle.Model.Predict(X)[0]), nil
}

// ConfidenceBand buckets a win probability into the reporting bands
func ConfidenceBand(prob float64) string {
	switch {
	case prob >= 0.8:
		return "very_high"
	case prob >= 0.65:
		return "high"
	case prob >= 0.5:
		return "medium"
	case prob >= 0.35:
		return "low"
	default:
		return "very_low"
	}
}
