package train

import (
	"fmt"
	"math/rand"
	"sort"
)

// Fold is one train/validation partition of the full row index
type Fold struct {
	TrainIdx []int
	ValIdx   []int
}

// StratifiedKFold partitions row indices into k folds preserving the
// class proportions of y. Fold assignment is a pure function of
// (y, k, seed): identical inputs always yield identical partitions.
// Every row appears in exactly one validation set.
func StratifiedKFold(y []int, k int, seed int64) ([]Fold, error) {
	n := len(y)
	if k < 2 {
		return nil, fmt.Errorf("train: need at least 2 folds, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("train: %d folds for %d rows", k, n)
	}

	// Shuffle within each class so fold contents are seed-dependent but
	// class proportions stay fixed
	var pos, neg []int
	for i, label := range y {
		if label == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(pos), func(i, j int) { pos[i], pos[j] = pos[j], pos[i] })
	rng.Shuffle(len(neg), func(i, j int) { neg[i], neg[j] = neg[j], neg[i] })

	valSets := make([][]int, k)
	for i, idx := range pos {
		valSets[i%k] = append(valSets[i%k], idx)
	}
	for i, idx := range neg {
		valSets[i%k] = append(valSets[i%k], idx)
	}

	folds := make([]Fold, k)
	for f := 0; f < k; f++ {
		inVal := make(map[int]bool, len(valSets[f]))
		for _, idx := range valSets[f] {
			inVal[idx] = true
		}
		val := append([]int(nil), valSets[f]...)
		sort.Ints(val)

		train := make([]int, 0, n-len(val))
		for i := 0; i < n; i++ {
			if !inVal[i] {
				train = append(train, i)
			}
		}
		folds[f] = Fold{TrainIdx: train, ValIdx: val}
	}
	return folds, nil
}

// subset gathers the rows of X and y at the given indices. Rows are
// shared, not copied.
func subset(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	outX := make([][]float64, len(idx))
	outY := make([]int, len(idx))
	for i, j := range idx {
		outX[i] = X[j]
		outY[i] = y[j]
	}
	return outX, outY
}
