// Package model implements the binary classifier families the trainer
// cross-validates: logistic regression, random forest, k-NN, Gaussian
// naive Bayes, and a least-squares linear probability model.
package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
)

// Classifier is a binary classifier over a fixed-width numeric matrix.
// Labels are 0/1.
type Classifier interface {
	// Fit trains the classifier. X is row-major, all rows equal width.
	Fit(X [][]float64, y []int) error
	// Predict returns hard 0/1 labels
	Predict(X [][]float64) []int
	// PredictProba returns p(y=1) per row, or nil when the model has no
	// probability output
	PredictProba(X [][]float64) []float64
}

// FeatureImportancer is implemented by models exposing per-feature
// importance weights
type FeatureImportancer interface {
	FeatureImportances() []float64
}

// Factory constructs a fresh untrained classifier instance
type Factory func() Classifier

// Factories maps candidate names to constructors. Each cross-validation
// fold gets a fresh instance from the factory.
func Factories(seed int64) map[string]Factory {
	return map[string]Factory{
		"logistic": func() Classifier { return NewLogisticRegression(seed) },
		"forest":   func() Classifier { return NewRandomForest(seed) },
		"knn":      func() Classifier { return NewKNN(5) },
		"bayes":    func() Classifier { return NewGaussianNB() },
		"linear":   func() Classifier { return NewLinearProbability() },
	}
}

// CandidateNames returns the known candidate names in sorted order
func CandidateNames() []string {
	names := make([]string, 0, 5)
	for name := range Factories(0) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	gob.Register(&LogisticRegression{})
	gob.Register(&RandomForest{})
	gob.Register(&KNN{})
	gob.Register(&GaussianNB{})
	gob.Register(&LinearProbability{})
}

// Marshal serializes a fitted classifier to bytes
func Marshal(c Classifier) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(&c); err != nil {
		return nil, fmt.Errorf("model: encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal deserializes a classifier previously written by Marshal
func Unmarshal(data []byte) (Classifier, error) {
	var c Classifier
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("model: decode failed: %w", err)
	}
	return c, nil
}

// validateFit checks the common Fit preconditions
func validateFit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("model: empty training matrix")
	}
	if len(y) != len(X) {
		return fmt.Errorf("model: matrix has %d rows but %d labels", len(X), len(y))
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return fmt.Errorf("model: row %d has width %d, want %d", i, len(X[i]), p)
		}
	}
	return nil
}

// thresholdLabels converts probabilities to hard labels at 0.5
func thresholdLabels(probs []float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			out[i] = 1
		}
	}
	return out
}
