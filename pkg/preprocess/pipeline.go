// Package preprocess maps raw runner records to the fixed-width numeric
// matrix models are fit against. A Pipeline carries the fitted transformer
// state (per-column medians, categorical codebooks, scaler statistics) so
// every later transform, including inference, reuses the exact statistics
// learned at fit time.
package preprocess

import (
	"fmt"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/gallopml/gallop/pkg/dataset"
)

// UnknownCategory is the reserved category for values not seen during fit
const UnknownCategory = "unknown"

// LabelEncoder maps category strings to dense integer codes. The codebook
// is assigned in sorted order so it is stable across process runs, and
// always contains a reserved code for unseen values.
type LabelEncoder struct {
	Codes       map[string]int
	UnknownCode int
}

// fitEncoder builds a codebook from the observed values of one column
func fitEncoder(values []string) *LabelEncoder {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if dataset.IsMissing(v) {
			v = UnknownCategory
		}
		seen[v] = true
	}
	seen[UnknownCategory] = true

	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	enc := &LabelEncoder{Codes: make(map[string]int, len(classes))}
	for i, c := range classes {
		enc.Codes[c] = i
	}
	enc.UnknownCode = enc.Codes[UnknownCategory]
	return enc
}

// Encode maps a raw cell value to its integer code, falling back to the
// unknown code for missing or unseen values
func (e *LabelEncoder) Encode(v string) int {
	if dataset.IsMissing(v) {
		return e.UnknownCode
	}
	if code, ok := e.Codes[v]; ok {
		return code
	}
	return e.UnknownCode
}

// StandardScaler standardizes each matrix column to zero mean and unit
// variance using statistics captured at fit time
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// fitScaler computes per-column mean and standard deviation
func fitScaler(X [][]float64) *StandardScaler {
	if len(X) == 0 {
		return &StandardScaler{}
	}
	p := len(X[0])
	s := &StandardScaler{
		Mean: make([]float64, p),
		Std:  make([]float64, p),
	}
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || len(X) < 2 {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
	return s
}

// Apply standardizes the matrix in place
func (s *StandardScaler) Apply(X [][]float64) {
	for i := range X {
		for j := range X[i] {
			X[i][j] = (X[i][j] - s.Mean[j]) / s.Std[j]
		}
	}
}

// ApplyRow standardizes a single feature vector in place
func (s *StandardScaler) ApplyRow(x []float64) {
	for j := range x {
		x[j] = (x[j] - s.Mean[j]) / s.Std[j]
	}
}

// Pipeline is the fitted preprocessing state for one training run. It
// transitions unfit -> fit on the first Fit call; all later transforms are
// side-effect-free reads of the fitted state.
type Pipeline struct {
	Spec     *dataset.FeatureSpec
	Medians  map[string]float64
	Encoders map[string]*LabelEncoder
	Scaler   *StandardScaler
	Fitted   bool
}

// New creates an unfit pipeline for the given feature spec
func New(spec *dataset.FeatureSpec) *Pipeline {
	return &Pipeline{
		Spec:     spec,
		Medians:  make(map[string]float64),
		Encoders: make(map[string]*LabelEncoder),
	}
}

// Fit learns imputation medians, categorical codebooks, and scaler
// statistics from the training table. Fitting twice is an error: the
// fitted state must never be silently replaced mid-run.
func (p *Pipeline) Fit(d *dataset.Dataset) error {
	if p.Fitted {
		return fmt.Errorf("preprocess: pipeline already fitted")
	}
	if len(d.Rows) == 0 {
		return fmt.Errorf("preprocess: cannot fit on empty dataset")
	}

	for i, col := range p.Spec.Columns {
		values := d.Column(col)
		if p.Spec.Kind(i) == dataset.Numeric {
			p.Medians[col] = columnMedian(values)
		} else {
			p.Encoders[col] = fitEncoder(values)
		}
	}

	raw := p.rawMatrix(d)
	p.Scaler = fitScaler(raw)
	p.Fitted = true
	return nil
}

// Transform maps a dataset to the scaled numeric matrix and, when the
// target column is present, the binary label vector
func (p *Pipeline) Transform(d *dataset.Dataset, target string) ([][]float64, []int, error) {
	if !p.Fitted {
		return nil, nil, fmt.Errorf("preprocess: pipeline not fitted")
	}
	X := p.rawMatrix(d)
	p.Scaler.Apply(X)

	var y []int
	if target != "" && d.HasColumn(target) {
		labels, err := d.Labels(target)
		if err != nil {
			return nil, nil, err
		}
		y = labels
	}
	return X, y, nil
}

// FitTransform fits the pipeline and transforms the same table
func (p *Pipeline) FitTransform(d *dataset.Dataset, target string) ([][]float64, []int, error) {
	if err := p.Fit(d); err != nil {
		return nil, nil, err
	}
	return p.Transform(d, target)
}

// TransformRecord maps a single raw record to a scaled feature vector in
// spec order, for the inference path
func (p *Pipeline) TransformRecord(rec dataset.Record) ([]float64, error) {
	if !p.Fitted {
		return nil, fmt.Errorf("preprocess: pipeline not fitted")
	}
	x := make([]float64, len(p.Spec.Columns))
	for i, col := range p.Spec.Columns {
		x[i] = p.rawValue(i, col, rec[col])
	}
	p.Scaler.ApplyRow(x)
	return x, nil
}

// rawMatrix builds the unscaled matrix: numeric columns imputed with the
// fit-time median, categorical columns run through their codebooks
func (p *Pipeline) rawMatrix(d *dataset.Dataset) [][]float64 {
	X := make([][]float64, len(d.Rows))
	for r, row := range d.Rows {
		x := make([]float64, len(p.Spec.Columns))
		for i, col := range p.Spec.Columns {
			x[i] = p.rawValue(i, col, row[col])
		}
		X[r] = x
	}
	return X
}

// rawValue produces the unscaled numeric value for one cell
func (p *Pipeline) rawValue(i int, col, v string) float64 {
	if p.Spec.Kind(i) == dataset.Categorical {
		return float64(p.Encoders[col].Encode(v))
	}
	if dataset.IsMissing(v) {
		return p.Medians[col]
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		// Unparseable value in a column that resolved numeric at fit
		// time; treat like a missing cell rather than poisoning the row
		return p.Medians[col]
	}
	return f
}

// columnMedian computes the median of the parseable values in a column.
// A column with no parseable values imputes to zero.
func columnMedian(values []string) float64 {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if dataset.IsMissing(v) {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return 0
	}
	sort.Float64s(nums)
	return stat.Quantile(0.5, stat.Empirical, nums, nil)
}
