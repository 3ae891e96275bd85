package model

import (
	"fmt"
	"sort"
)

// KNN is a k-nearest-neighbour classifier. Fit stores the training data;
// probability output is the positive fraction among the k nearest rows.
type KNN struct {
	K int
	X [][]float64
	Y []int
}

// NewKNN returns a k-NN classifier with the given neighbour count
func NewKNN(k int) *KNN {
	return &KNN{K: k}
}

// Fit stores the training matrix and labels
func (m *KNN) Fit(X [][]float64, y []int) error {
	if err := validateFit(X, y); err != nil {
		return err
	}
	if m.K < 1 {
		return fmt.Errorf("model: knn needs k >= 1, got %d", m.K)
	}
	m.X = X
	m.Y = y
	return nil
}

// PredictProba returns the positive-vote fraction among the k nearest
// training rows for each query row
func (m *KNN) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = m.voteFraction(x)
	}
	return out
}

// Predict thresholds the vote fraction at 0.5
func (m *KNN) Predict(X [][]float64) []int {
	return thresholdLabels(m.PredictProba(X))
}

// voteFraction finds the k nearest stored rows by squared euclidean
// distance and returns the fraction labelled positive
func (m *KNN) voteFraction(x []float64) float64 {
	type neighbour struct {
		dist  float64
		label int
	}
	k := m.K
	if k > len(m.X) {
		k = len(m.X)
	}
	nbrs := make([]neighbour, 0, k+1)
	for j, row := range m.X {
		d := sqEuclidean(x, row)
		if len(nbrs) < k {
			nbrs = append(nbrs, neighbour{d, m.Y[j]})
			sort.Slice(nbrs, func(a, b int) bool { return nbrs[a].dist < nbrs[b].dist })
		} else if d < nbrs[k-1].dist {
			nbrs[k-1] = neighbour{d, m.Y[j]}
			sort.Slice(nbrs, func(a, b int) bool { return nbrs[a].dist < nbrs[b].dist })
		}
	}
	pos := 0
	for _, nb := range nbrs {
		pos += nb.label
	}
	return float64(pos) / float64(len(nbrs))
}

// sqEuclidean computes squared euclidean distance between equal-length rows
func sqEuclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
