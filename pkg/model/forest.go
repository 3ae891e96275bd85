package model

import (
	"math"
	"math/rand"
	"runtime"
	"sync"
)

// RandomForest averages the leaf probabilities of bootstrap-sampled CART
// trees with per-split feature subsampling
type RandomForest struct {
	NEstimators    int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           int64

	Trees     []*DecisionTree
	NFeatures int
}

// NewRandomForest returns an untrained forest with defaults following the
// primary-model configuration of the reference methodology
func NewRandomForest(seed int64) *RandomForest {
	return &RandomForest{
		NEstimators:    100,
		MaxDepth:       12,
		MinSamplesLeaf: 1,
		Seed:           seed,
	}
}

// Fit grows NEstimators trees on bootstrap samples. Trees are independent
// and grown in parallel across CPU cores; tree i always receives seed
// Seed+i so the fitted forest is reproducible regardless of scheduling.
func (f *RandomForest) Fit(X [][]float64, y []int) error {
	if err := validateFit(X, y); err != nil {
		return err
	}
	n := len(X)
	f.NFeatures = len(X[0])
	f.Trees = make([]*DecisionTree, f.NEstimators)

	maxFeatures := int(math.Sqrt(float64(f.NFeatures)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	workers := runtime.GOMAXPROCS(0)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < f.NEstimators; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			treeSeed := f.Seed + int64(i)
			rng := rand.New(rand.NewSource(treeSeed))

			bootX := make([][]float64, n)
			bootY := make([]int, n)
			for j := 0; j < n; j++ {
				k := rng.Intn(n)
				bootX[j] = X[k]
				bootY[j] = y[k]
			}

			tree := NewDecisionTree(treeSeed)
			tree.MaxDepth = f.MaxDepth
			tree.MinSamplesLeaf = f.MinSamplesLeaf
			tree.MaxFeatures = maxFeatures
			if err := tree.Fit(bootX, bootY); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			f.Trees[i] = tree
		}(i)
	}
	wg.Wait()
	return firstErr
}

// PredictProba averages per-tree leaf probabilities
func (f *RandomForest) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(f.Trees) == 0 {
		return out
	}
	for _, tree := range f.Trees {
		probs := tree.PredictProba(X)
		for i, p := range probs {
			out[i] += p
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}

// Predict thresholds the ensemble probability at 0.5
func (f *RandomForest) Predict(X [][]float64) []int {
	return thresholdLabels(f.PredictProba(X))
}

// FeatureImportances averages the normalized impurity importances of the
// component trees
func (f *RandomForest) FeatureImportances() []float64 {
	out := make([]float64, f.NFeatures)
	if len(f.Trees) == 0 {
		return out
	}
	for _, tree := range f.Trees {
		for j, imp := range tree.Importances {
			out[j] += imp
		}
	}
	for j := range out {
		out[j] /= float64(len(f.Trees))
	}
	normalize(out)
	return out
}
