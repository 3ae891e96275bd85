package model

import (
	"fmt"

	"github.com/sajari/regression"
)

// LinearProbability is a least-squares linear probability model: ordinary
// linear regression of the 0/1 label on the features, with predictions
// clipped to [0,1] so they can stand in as probabilities
type LinearProbability struct {
	Intercept float64
	Coeffs    []float64
}

// NewLinearProbability returns an untrained linear probability model
func NewLinearProbability() *LinearProbability {
	return &LinearProbability{}
}

// Fit solves the least-squares regression of y on X
func (m *LinearProbability) Fit(X [][]float64, y []int) error {
	if err := validateFit(X, y); err != nil {
		return err
	}
	p := len(X[0])

	r := new(regression.Regression)
	r.SetObserved("label")
	for j := 0; j < p; j++ {
		r.SetVar(j, fmt.Sprintf("f%d", j))
	}
	for i, row := range X {
		vars := make([]float64, p)
		copy(vars, row)
		r.Train(regression.DataPoint(float64(y[i]), vars))
	}
	if err := r.Run(); err != nil {
		return fmt.Errorf("model: linear regression failed: %w", err)
	}

	m.Intercept = r.Coeff(0)
	m.Coeffs = make([]float64, p)
	for j := 0; j < p; j++ {
		m.Coeffs[j] = r.Coeff(j + 1)
	}
	return nil
}

// PredictProba returns the clipped linear score per row
func (m *LinearProbability) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		score := m.Intercept
		for j, v := range row {
			score += m.Coeffs[j] * v
		}
		switch {
		case score < 0:
			score = 0
		case score > 1:
			score = 1
		}
		out[i] = score
	}
	return out
}

// Predict thresholds the clipped score at 0.5
func (m *LinearProbability) Predict(X [][]float64) []int {
	return thresholdLabels(m.PredictProba(X))
}
