package train

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metric is a float64 metric value that marshals NaN as JSON null, so
// undefined fold metrics survive the metadata round trip
type Metric float64

// MarshalJSON renders NaN as null
func (m Metric) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(m)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(m))
}

// UnmarshalJSON reads null back as NaN
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*m = Metric(f)
	return nil
}

// IsNaN reports whether the metric is undefined
func (m Metric) IsNaN() bool {
	return math.IsNaN(float64(m))
}

// Confusion is a 2x2 confusion matrix indexed [actual][predicted]
type Confusion [2][2]int

// FoldMetrics holds the validation metrics of one fold
type FoldMetrics struct {
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1"`
	ROCAUC    Metric    `json:"roc_auc"`
	Confusion Confusion `json:"confusion"`
}

// evaluateFold computes all fold metrics from true labels, hard
// predictions, and probabilities
func evaluateFold(y []int, preds []int, probs []float64) FoldMetrics {
	var m FoldMetrics
	tp, fp, fn, tn := 0, 0, 0, 0
	correct := 0
	for i := range y {
		m.Confusion[y[i]][preds[i]]++
		switch {
		case preds[i] == 1 && y[i] == 1:
			tp++
		case preds[i] == 1 && y[i] == 0:
			fp++
		case preds[i] == 0 && y[i] == 1:
			fn++
		default:
			tn++
		}
		if y[i] == preds[i] {
			correct++
		}
	}
	if len(y) > 0 {
		m.Accuracy = float64(correct) / float64(len(y))
	}
	// Zero denominators yield 0, never an error
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.ROCAUC = Metric(rocAUC(y, probs))
	return m
}

// rocAUC computes the area under the ROC curve. Returns NaN when the
// labels contain only one class, where the curve is undefined.
func rocAUC(y []int, probs []float64) float64 {
	pos, neg := 0, 0
	for _, label := range y {
		if label == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN()
	}
	scores := make([]float64, len(probs))
	classes := make([]bool, len(y))
	copy(scores, probs)
	for i, label := range y {
		classes[i] = label == 1
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Aggregate is the mean/std summary of one metric across folds
type Aggregate struct {
	Mean Metric `json:"mean"`
	Std  Metric `json:"std"`
}

// aggregate computes mean and population standard deviation
func aggregate(values []float64) Aggregate {
	if len(values) == 0 {
		return Aggregate{Mean: Metric(math.NaN()), Std: Metric(math.NaN())}
	}
	mean := stat.Mean(values, nil)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return Aggregate{
		Mean: Metric(mean),
		Std:  Metric(math.Sqrt(ss / float64(len(values)))),
	}
}

// aggregateSkipNaN aggregates ignoring undefined fold values. When every
// fold is undefined the aggregate itself is NaN.
func aggregateSkipNaN(values []float64) Aggregate {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	return aggregate(kept)
}
