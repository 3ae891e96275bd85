// Package train runs the cross-validated training and evaluation pipeline:
// stratified folds, per-fold SMOTE resampling, candidate fitting, metric
// aggregation, and champion selection.
package train

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/gallopml/gallop/pkg/dataset"
	"github.com/gallopml/gallop/pkg/logx"
	"github.com/gallopml/gallop/pkg/model"
	"github.com/gallopml/gallop/pkg/preprocess"
	"github.com/gallopml/gallop/pkg/resample"
)

// Trainer holds the training run configuration
type Trainer struct {
	Folds      int
	SMOTEK     int
	Seed       int64
	Threshold  float64
	Strict     bool
	Candidates []string

	// SkipResampleFailures trains a fold on its raw imbalanced rows when
	// SMOTE cannot run there, instead of aborting the whole run
	SkipResampleFailures bool

	logger *logx.Logger
}

// New creates a trainer with the default configuration
func New(logger *logx.Logger) *Trainer {
	return &Trainer{
		Folds:     5,
		SMOTEK:    5,
		Seed:      42,
		Threshold: 0.5,
		logger:    logger,
	}
}

// Run executes a complete training run over the dataset.
//
// Preprocessing is fit once on the full training table before
// cross-validation; the same fitted pipeline serves every fold's
// validation split and later inference. This trades a small
// scaling-statistics leak for train/inference consistency and is
// deliberate.
func (t *Trainer) Run(ds *dataset.Dataset, target string, allowList []string) (*Result, error) {
	start := time.Now()

	spec, err := dataset.ResolveFeatures(ds, target, allowList, t.Strict)
	if err != nil {
		return nil, err
	}
	if !ds.HasColumn(target) {
		return nil, &dataset.SchemaError{Msg: "target column not found", Columns: []string{target}}
	}

	pipeline := preprocess.New(spec)
	X, y, err := pipeline.FitTransform(ds, target)
	if err != nil {
		return nil, err
	}

	candidates, err := t.resolveCandidates()
	if err != nil {
		return nil, err
	}

	pos := 0
	for _, label := range y {
		pos += label
	}
	t.logger.Info("starting training run",
		"rows", len(X),
		"features", len(spec.Columns),
		"positive_rate", float64(pos)/float64(len(y)),
		"folds", t.Folds,
		"candidates", candidates,
	)

	folds, err := StratifiedKFold(y, t.Folds, t.Seed)
	if err != nil {
		return nil, err
	}

	factories := model.Factories(t.Seed)
	evaluations := make([]*Evaluation, 0, len(candidates))
	for _, name := range candidates {
		eval, err := t.evaluateCandidate(name, factories[name], X, y, folds)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, eval)
	}

	// Full-data refit of every candidate on the resampled complete set
	fullX, fullY, err := t.resampleFold(X, y, t.Seed)
	if err != nil {
		return nil, err
	}
	for _, eval := range evaluations {
		refit := factories[eval.Candidate]()
		if err := refit.Fit(fullX, fullY); err != nil {
			return nil, fmt.Errorf("full refit of %s failed: %w", eval.Candidate, err)
		}
		eval.Model = refit
	}

	champion, metric := selectChampion(evaluations)
	result := &Result{
		RunID:           uuid.NewString(),
		Champion:        champion,
		SelectionMetric: metric,
		Threshold:       t.Threshold,
		Evaluations:     evaluations,
		TrainedAt:       time.Now().UTC(),
		FeatureSpec:     spec,
		Pipeline:        pipeline,
	}

	champEval := result.Evaluation(champion)
	if champEval.HasProbs {
		result.ROC = rocCurve(y, champEval.OOFProbs)
	}

	t.logger.Info("training run complete",
		"run_id", result.RunID,
		"champion", champion,
		"selection_metric", metric,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// resolveCandidates validates the configured candidate list, defaulting
// to every known family in sorted order
func (t *Trainer) resolveCandidates() ([]string, error) {
	known := model.Factories(t.Seed)
	if len(t.Candidates) == 0 {
		return model.CandidateNames(), nil
	}
	out := make([]string, 0, len(t.Candidates))
	for _, name := range t.Candidates {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("unknown model candidate %q, valid: %v", name, model.CandidateNames())
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// evaluateCandidate runs the k-fold evaluation loop for one family
func (t *Trainer) evaluateCandidate(name string, factory model.Factory, X [][]float64, y []int, folds []Fold) (*Evaluation, error) {
	eval := &Evaluation{
		Candidate: name,
		Folds:     make([]FoldMetrics, 0, len(folds)),
		OOFProbs:  make([]float64, len(y)),
		HasProbs:  true,
	}

	var accs, precs, recalls, f1s, aucs []float64
	for f, fold := range folds {
		trainX, trainY := subset(X, y, fold.TrainIdx)
		valX, valY := subset(X, y, fold.ValIdx)

		// Resampling stays strictly inside the training portion
		resX, resY, err := t.resampleFold(trainX, trainY, t.Seed+int64(f))
		if err != nil {
			return nil, fmt.Errorf("candidate %s fold %d: %w", name, f, err)
		}

		clf := factory()
		if err := clf.Fit(resX, resY); err != nil {
			return nil, fmt.Errorf("candidate %s fold %d fit failed: %w", name, f, err)
		}

		probs := clf.PredictProba(valX)
		if probs == nil {
			// Hard labels cast to pseudo-probabilities
			eval.HasProbs = false
			preds := clf.Predict(valX)
			probs = make([]float64, len(preds))
			for i, p := range preds {
				probs[i] = float64(p)
			}
		}

		preds := make([]int, len(probs))
		for i, p := range probs {
			if p >= 0.5 {
				preds[i] = 1
			}
		}

		fm := evaluateFold(valY, preds, probs)
		if !eval.HasProbs {
			// Ranking quality is meaningless over 0/1 pseudo-probabilities
			fm.ROCAUC = Metric(math.NaN())
		}
		eval.Folds = append(eval.Folds, fm)

		for i, j := range fold.ValIdx {
			eval.OOFProbs[j] = probs[i]
		}

		accs = append(accs, fm.Accuracy)
		precs = append(precs, fm.Precision)
		recalls = append(recalls, fm.Recall)
		f1s = append(f1s, fm.F1)
		aucs = append(aucs, float64(fm.ROCAUC))

		t.logger.Debug("fold evaluated",
			"candidate", name,
			"fold", f,
			"accuracy", fm.Accuracy,
			"f1", fm.F1,
			"roc_auc", float64(fm.ROCAUC),
		)
	}

	eval.Accuracy = aggregate(accs)
	eval.Precision = aggregate(precs)
	eval.Recall = aggregate(recalls)
	eval.F1 = aggregate(f1s)
	eval.ROCAUC = aggregateSkipNaN(aucs)

	t.logger.Info("candidate evaluated",
		"candidate", name,
		"accuracy_mean", float64(eval.Accuracy.Mean),
		"f1_mean", float64(eval.F1.Mean),
		"roc_auc_mean", float64(eval.ROCAUC.Mean),
	)
	return eval, nil
}

// resampleFold applies SMOTE to one training partition, honoring the
// configured failure policy
func (t *Trainer) resampleFold(X [][]float64, y []int, seed int64) ([][]float64, []int, error) {
	resX, resY, err := resample.New(t.SMOTEK, seed).Apply(X, y)
	if err == nil {
		return resX, resY, nil
	}
	if t.SkipResampleFailures {
		t.logger.Warn("resampling skipped for fold", "error", err.Error())
		return X, y, nil
	}
	return nil, nil, err
}

// selectChampion picks the candidate with the highest mean ROC-AUC, ties
// broken by mean accuracy. When no candidate produced any ROC-AUC the
// selection falls back to mean accuracy globally.
func selectChampion(evaluations []*Evaluation) (string, string) {
	anyAUC := false
	for _, e := range evaluations {
		if !e.ROCAUC.Mean.IsNaN() {
			anyAUC = true
			break
		}
	}

	best := evaluations[0]
	if anyAUC {
		for _, e := range evaluations[1:] {
			if better(float64(e.ROCAUC.Mean), float64(best.ROCAUC.Mean),
				float64(e.Accuracy.Mean), float64(best.Accuracy.Mean)) {
				best = e
			}
		}
		return best.Candidate, "roc_auc"
	}
	for _, e := range evaluations[1:] {
		if float64(e.Accuracy.Mean) > float64(best.Accuracy.Mean) {
			best = e
		}
	}
	return best.Candidate, "accuracy"
}

// better compares by primary metric then tiebreaker, treating NaN primary
// as worst
func better(primary, bestPrimary, tie, bestTie float64) bool {
	if math.IsNaN(primary) {
		return false
	}
	if math.IsNaN(bestPrimary) {
		return true
	}
	if primary != bestPrimary {
		return primary > bestPrimary
	}
	return tie > bestTie
}

// rocCurve sweeps TPR/FPR over the out-of-fold probabilities
func rocCurve(y []int, probs []float64) []ROCPoint {
	scores := make([]float64, len(probs))
	classes := make([]bool, len(y))
	copy(scores, probs)
	for i, label := range y {
		classes[i] = label == 1
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, thresholds := stat.ROC(nil, scores, classes, nil)

	points := make([]ROCPoint, len(tpr))
	for i := range tpr {
		points[i] = ROCPoint{FPR: fpr[i], TPR: tpr[i], Threshold: thresholds[i]}
	}
	return points
}
