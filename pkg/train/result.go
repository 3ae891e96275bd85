package train

import (
	"time"

	"github.com/gallopml/gallop/pkg/dataset"
	"github.com/gallopml/gallop/pkg/model"
	"github.com/gallopml/gallop/pkg/preprocess"
)

// Evaluation is the cross-validated record of one candidate family
type Evaluation struct {
	Candidate string        `json:"candidate"`
	Folds     []FoldMetrics `json:"folds"`
	Accuracy  Aggregate     `json:"accuracy"`
	Precision Aggregate     `json:"precision"`
	Recall    Aggregate     `json:"recall"`
	F1        Aggregate     `json:"f1"`
	ROCAUC    Aggregate     `json:"roc_auc"`
	HasProbs  bool          `json:"has_probabilities"`

	// OOFProbs holds one out-of-fold probability per dataset row, each
	// written exactly once by the fold that held the row out
	OOFProbs []float64 `json:"-"`

	// Model is the final full-data refit of this candidate
	Model model.Classifier `json:"-"`
}

// ROCPoint is one point of the champion's aggregate ROC curve
type ROCPoint struct {
	FPR       float64 `json:"fpr"`
	TPR       float64 `json:"tpr"`
	Threshold float64 `json:"threshold"`
}

// Result is the outcome of one training run
type Result struct {
	RunID           string        `json:"run_id"`
	Champion        string        `json:"champion"`
	SelectionMetric string        `json:"selection_metric"`
	Threshold       float64       `json:"threshold"`
	Evaluations     []*Evaluation `json:"evaluations"`
	ROC             []ROCPoint    `json:"roc,omitempty"`
	TrainedAt       time.Time     `json:"trained_at"`

	FeatureSpec *dataset.FeatureSpec `json:"feature_spec"`
	Pipeline    *preprocess.Pipeline `json:"-"`
}

// Evaluation returns the named candidate's evaluation, or nil
func (r *Result) Evaluation(candidate string) *Evaluation {
	for _, e := range r.Evaluations {
		if e.Candidate == candidate {
			return e
		}
	}
	return nil
}

// ChampionModel returns the champion's full-data refit model
func (r *Result) ChampionModel() model.Classifier {
	e := r.Evaluation(r.Champion)
	if e == nil {
		return nil
	}
	return e.Model
}

// FeatureImportance maps feature names to non-negative weights when the
// champion model exposes importances; otherwise an empty map. Never fails.
func (r *Result) FeatureImportance() map[string]float64 {
	out := make(map[string]float64)
	champ := r.ChampionModel()
	imp, ok := champ.(model.FeatureImportancer)
	if !ok {
		return out
	}
	weights := imp.FeatureImportances()
	for i, col := range r.FeatureSpec.Columns {
		if i < len(weights) {
			out[col] = weights[i]
		}
	}
	return out
}
