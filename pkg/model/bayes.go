package model

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// GaussianNB is a Gaussian naive Bayes classifier: per-class, per-feature
// normal likelihoods with class priors estimated from the training labels
type GaussianNB struct {
	// Indexed [class][feature], class 0 then 1
	Means [2][]float64
	Vars  [2][]float64
	Prior [2]float64
}

// varianceFloor keeps degenerate zero-variance features from producing
// infinite densities
const varianceFloor = 1e-9

// NewGaussianNB returns an untrained Gaussian naive Bayes classifier
func NewGaussianNB() *GaussianNB {
	return &GaussianNB{}
}

// Fit estimates per-class feature means, variances, and class priors
func (m *GaussianNB) Fit(X [][]float64, y []int) error {
	if err := validateFit(X, y); err != nil {
		return err
	}
	p := len(X[0])
	col := make([]float64, 0, len(X))

	counts := [2]int{}
	for _, label := range y {
		counts[label]++
	}
	for c := 0; c < 2; c++ {
		m.Prior[c] = float64(counts[c]) / float64(len(y))
		m.Means[c] = make([]float64, p)
		m.Vars[c] = make([]float64, p)
		for j := 0; j < p; j++ {
			col = col[:0]
			for i, row := range X {
				if y[i] == c {
					col = append(col, row[j])
				}
			}
			if len(col) == 0 {
				m.Vars[c][j] = varianceFloor
				continue
			}
			mean, std := stat.MeanStdDev(col, nil)
			v := std * std
			if len(col) < 2 || v < varianceFloor {
				v = varianceFloor
			}
			m.Means[c][j] = mean
			m.Vars[c][j] = v
		}
	}
	return nil
}

// PredictProba returns the posterior p(y=1 | x) per row
func (m *GaussianNB) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = m.posterior(x)
	}
	return out
}

// Predict thresholds the posterior at 0.5
func (m *GaussianNB) Predict(X [][]float64) []int {
	return thresholdLabels(m.PredictProba(X))
}

// posterior computes p(y=1 | x) via log-likelihoods for stability
func (m *GaussianNB) posterior(x []float64) float64 {
	var logp [2]float64
	for c := 0; c < 2; c++ {
		if m.Prior[c] == 0 {
			logp[c] = math.Inf(-1)
			continue
		}
		lp := math.Log(m.Prior[c])
		for j, v := range x {
			variance := m.Vars[c][j]
			diff := v - m.Means[c][j]
			lp += -0.5*math.Log(2*math.Pi*variance) - diff*diff/(2*variance)
		}
		logp[c] = lp
	}
	// Softmax over the two class log-posteriors
	maxLog := math.Max(logp[0], logp[1])
	e0 := math.Exp(logp[0] - maxLog)
	e1 := math.Exp(logp[1] - maxLog)
	return e1 / (e0 + e1)
}
