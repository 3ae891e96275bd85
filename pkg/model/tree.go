package model

import (
	"math/rand"
	"sort"
)

// TreeNode is one node of a fitted CART tree. Split nodes route rows by
// "x[Feature] < Threshold"; leaves carry the positive-class fraction of
// the training rows that reached them.
type TreeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Proba     float64
	N         int
}

// DecisionTree is a CART binary classifier split on gini impurity
type DecisionTree struct {
	MaxDepth       int
	MinSamplesLeaf int
	// MaxFeatures limits how many features are considered per split;
	// 0 means all. Random forests set this for decorrelation.
	MaxFeatures int
	Seed        int64

	Root        *TreeNode
	NFeatures   int
	Importances []float64
}

// NewDecisionTree returns an untrained CART tree
func NewDecisionTree(seed int64) *DecisionTree {
	return &DecisionTree{
		MaxDepth:       12,
		MinSamplesLeaf: 1,
		Seed:           seed,
	}
}

// Fit grows the tree on X and 0/1 labels y
func (t *DecisionTree) Fit(X [][]float64, y []int) error {
	if err := validateFit(X, y); err != nil {
		return err
	}
	t.NFeatures = len(X[0])
	t.Importances = make([]float64, t.NFeatures)

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(t.Seed))
	t.Root = t.grow(X, y, idx, 0, rng)

	normalize(t.Importances)
	return nil
}

// grow recursively builds the subtree over the rows in idx
func (t *DecisionTree) grow(X [][]float64, y []int, idx []int, depth int, rng *rand.Rand) *TreeNode {
	n := len(idx)
	pos := 0
	for _, i := range idx {
		pos += y[i]
	}
	proba := float64(pos) / float64(n)

	if depth >= t.MaxDepth || n < 2*t.MinSamplesLeaf || pos == 0 || pos == n {
		return &TreeNode{Leaf: true, Proba: proba, N: n}
	}

	feature, threshold, gain := t.bestSplit(X, y, idx, rng)
	if feature < 0 {
		return &TreeNode{Leaf: true, Proba: proba, N: n}
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < t.MinSamplesLeaf || len(right) < t.MinSamplesLeaf {
		return &TreeNode{Leaf: true, Proba: proba, N: n}
	}

	t.Importances[feature] += gain

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      t.grow(X, y, left, depth+1, rng),
		Right:     t.grow(X, y, right, depth+1, rng),
		N:         n,
	}
}

// bestSplit scans candidate features for the gini-optimal threshold.
// Returns feature -1 when no split improves impurity.
func (t *DecisionTree) bestSplit(X [][]float64, y []int, idx []int, rng *rand.Rand) (int, float64, float64) {
	n := len(idx)
	totalPos := 0
	for _, i := range idx {
		totalPos += y[i]
	}
	parent := giniImpurity(totalPos, n)

	features := t.candidateFeatures(rng)

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 0.0

	type valueLabel struct {
		v     float64
		label int
	}
	sorted := make([]valueLabel, n)

	for _, f := range features {
		for k, i := range idx {
			sorted[k] = valueLabel{v: X[i][f], label: y[i]}
		}
		sort.Slice(sorted, func(a, b int) bool { return sorted[a].v < sorted[b].v })

		leftPos, leftN := 0, 0
		for k := 0; k < n-1; k++ {
			leftPos += sorted[k].label
			leftN++
			if sorted[k].v == sorted[k+1].v {
				continue
			}
			rightPos := totalPos - leftPos
			rightN := n - leftN
			impurity := (float64(leftN)*giniImpurity(leftPos, leftN) +
				float64(rightN)*giniImpurity(rightPos, rightN)) / float64(n)
			gain := parent - impurity
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (sorted[k].v + sorted[k+1].v) / 2
			}
		}
	}
	// Weight the gain by the node's share of rows so importances reflect
	// how much of the data each split touched
	return bestFeature, bestThreshold, bestGain * float64(n)
}

// candidateFeatures picks the feature subset examined at one split
func (t *DecisionTree) candidateFeatures(rng *rand.Rand) []int {
	all := make([]int, t.NFeatures)
	for i := range all {
		all[i] = i
	}
	if t.MaxFeatures <= 0 || t.MaxFeatures >= t.NFeatures {
		return all
	}
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:t.MaxFeatures]
}

// giniImpurity computes 2p(1-p) for pos positives among n rows
func giniImpurity(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

// predictRow drops one feature vector down the tree
func (t *DecisionTree) predictRow(x []float64) float64 {
	node := t.Root
	for !node.Leaf {
		if x[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Proba
}

// PredictProba returns the leaf positive-fraction per row
func (t *DecisionTree) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = t.predictRow(x)
	}
	return out
}

// Predict thresholds the leaf probability at 0.5
func (t *DecisionTree) Predict(X [][]float64) []int {
	return thresholdLabels(t.PredictProba(X))
}

// FeatureImportances returns normalized impurity-decrease importances
func (t *DecisionTree) FeatureImportances() []float64 {
	return t.Importances
}

// normalize scales a non-negative vector to sum to one in place
func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
