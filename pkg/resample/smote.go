// Package resample implements SMOTE oversampling of the minority class.
// Resampling is only ever applied to the training portion of a fold, never
// to validation or test rows; the trainer enforces that boundary.
package resample

import (
	"fmt"
	"math/rand"
	"sort"
)

// ResamplingError reports that a fold's minority class is too small for
// the configured neighbour count
type ResamplingError struct {
	MinorityCount int
	KNeighbors    int
}

func (e *ResamplingError) Error() string {
	return fmt.Sprintf("resample: minority class has %d members, need at least %d for k=%d SMOTE",
		e.MinorityCount, e.KNeighbors+1, e.KNeighbors)
}

// SMOTE synthesizes minority-class rows by interpolating between each
// minority sample and one of its k nearest minority neighbours
type SMOTE struct {
	KNeighbors int
	Seed       int64
}

// New returns a SMOTE resampler with the given neighbour count and seed
func New(kNeighbors int, seed int64) *SMOTE {
	return &SMOTE{KNeighbors: kNeighbors, Seed: seed}
}

// Apply oversamples the minority class until both classes have equal
// counts. The input matrix and labels are never mutated; the returned
// slices share the original rows followed by the synthetic ones.
//
// Identical (X, y, seed, k) inputs always produce identical output.
func (s *SMOTE) Apply(X [][]float64, y []int) ([][]float64, []int, error) {
	if len(X) != len(y) {
		return nil, nil, fmt.Errorf("resample: matrix has %d rows but %d labels", len(X), len(y))
	}
	if len(X) == 0 {
		return nil, nil, fmt.Errorf("resample: empty training fold")
	}

	var pos, neg []int
	for i, label := range y {
		if label == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	minority, majority := pos, neg
	minorityLabel := 1
	if len(neg) < len(pos) {
		minority, majority = neg, pos
		minorityLabel = 0
	}
	deficit := len(majority) - len(minority)
	if deficit == 0 {
		return X, y, nil
	}
	if len(minority) < s.KNeighbors+1 {
		return nil, nil, &ResamplingError{MinorityCount: len(minority), KNeighbors: s.KNeighbors}
	}

	neighbours := minorityNeighbours(X, minority, s.KNeighbors)
	rng := rand.New(rand.NewSource(s.Seed))

	outX := make([][]float64, len(X), len(X)+deficit)
	copy(outX, X)
	outY := make([]int, len(y), len(y)+deficit)
	copy(outY, y)

	for n := 0; n < deficit; n++ {
		m := minority[n%len(minority)]
		nbr := neighbours[m][rng.Intn(s.KNeighbors)]
		r := rng.Float64()

		sample := X[m]
		neighbour := X[nbr]
		synthetic := make([]float64, len(sample))
		for j := range synthetic {
			synthetic[j] = sample[j] + r*(neighbour[j]-sample[j])
		}
		outX = append(outX, synthetic)
		outY = append(outY, minorityLabel)
	}
	return outX, outY, nil
}

// minorityNeighbours finds, for each minority row, its k nearest minority
// rows by squared euclidean distance (excluding itself)
func minorityNeighbours(X [][]float64, minority []int, k int) map[int][]int {
	type candidate struct {
		idx  int
		dist float64
	}
	out := make(map[int][]int, len(minority))
	for _, i := range minority {
		cands := make([]candidate, 0, len(minority)-1)
		for _, j := range minority {
			if i == j {
				continue
			}
			cands = append(cands, candidate{idx: j, dist: sqDist(X[i], X[j])})
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].dist != cands[b].dist {
				return cands[a].dist < cands[b].dist
			}
			return cands[a].idx < cands[b].idx
		})
		nbrs := make([]int, k)
		for n := 0; n < k; n++ {
			nbrs[n] = cands[n].idx
		}
		out[i] = nbrs
	}
	return out
}

// sqDist computes squared euclidean distance
func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
