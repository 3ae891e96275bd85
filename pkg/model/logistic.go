package model

import (
	"math"
	"math/rand"
)

// LogisticRegression is a binary logistic regression classifier trained
// with full-batch gradient descent
type LogisticRegression struct {
	W    []float64
	B    float64
	Lr   float64
	Iter int
	Seed int64
}

// NewLogisticRegression returns an untrained logistic regression with
// defaults suited to standardized features
func NewLogisticRegression(seed int64) *LogisticRegression {
	return &LogisticRegression{
		Lr:   0.1,
		Iter: 300,
		Seed: seed,
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Fit trains weights by gradient descent on the log loss
func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	if err := validateFit(X, y); err != nil {
		return err
	}
	n := len(X)
	p := len(X[0])

	rng := rand.New(rand.NewSource(m.Seed))
	m.W = make([]float64, p)
	for j := range m.W {
		m.W[j] = rng.NormFloat64() * 0.01
	}
	m.B = 0

	gW := make([]float64, p)
	for it := 0; it < m.Iter; it++ {
		for j := range gW {
			gW[j] = 0
		}
		gB := 0.0
		for i, row := range X {
			z := m.B
			for j, v := range row {
				z += m.W[j] * v
			}
			d := sigmoid(z) - float64(y[i])
			for j, v := range row {
				gW[j] += d * v
			}
			gB += d
		}
		scale := m.Lr / float64(n)
		for j := range m.W {
			m.W[j] -= scale * gW[j]
		}
		m.B -= scale * gB
	}
	return nil
}

// PredictProba returns the sigmoid of the linear score per row
func (m *LogisticRegression) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		z := m.B
		for j, v := range row {
			z += m.W[j] * v
		}
		out[i] = sigmoid(z)
	}
	return out
}

// Predict thresholds the probability at 0.5
func (m *LogisticRegression) Predict(X [][]float64) []int {
	return thresholdLabels(m.PredictProba(X))
}
