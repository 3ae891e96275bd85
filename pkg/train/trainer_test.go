package train

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/gallopml/gallop/pkg/dataset"
	"github.com/gallopml/gallop/pkg/logx"
	"github.com/gallopml/gallop/pkg/resample"
)

func quietLogger() *logx.Logger {
	return logx.NewWithOutput("error", io.Discard)
}

// syntheticRaces builds a runner-level table with numeric and categorical
// features where the win label depends on age and draw, at roughly the
// given positive rate
func syntheticRaces(n int, posRate float64, seed int64) *dataset.Dataset {
	rng := rand.New(rand.NewSource(seed))
	tracks := []string{"turf", "dirt", "sand"}
	going := []string{"firm", "good", "soft", "heavy"}

	ds := &dataset.Dataset{
		Columns: []string{
			"age", "weight", "draw", "distance", "rating",
			"last_speed", "days_rest", "penetrometer",
			"track", "going", "position",
		},
	}
	for i := 0; i < n; i++ {
		win := 0
		if rng.Float64() < posRate {
			win = 1
		}
		// Winners skew younger with lower draws
		age := 5 + rng.NormFloat64()
		draw := 8 + rng.NormFloat64()*3
		if win == 1 {
			age -= 1.5
			draw -= 4
		}
		row := dataset.Record{
			"age":          fmt.Sprintf("%.2f", age),
			"weight":       fmt.Sprintf("%.1f", 500+rng.NormFloat64()*20),
			"draw":         fmt.Sprintf("%.0f", math.Max(1, draw)),
			"distance":     fmt.Sprintf("%d", 1200+rng.Intn(4)*400),
			"rating":       fmt.Sprintf("%.1f", 60+rng.NormFloat64()*10+float64(win)*8),
			"last_speed":   fmt.Sprintf("%.2f", 30+rng.NormFloat64()*2),
			"days_rest":    fmt.Sprintf("%d", 7+rng.Intn(40)),
			"penetrometer": fmt.Sprintf("%.1f", 3+rng.Float64()*2),
			"track":        tracks[rng.Intn(len(tracks))],
			"going":        going[rng.Intn(len(going))],
			"position":     fmt.Sprintf("%d", win),
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func TestRunEndToEnd(t *testing.T) {
	ds := syntheticRaces(1000, 0.1, 1)

	tr := New(quietLogger())
	tr.Candidates = []string{"logistic", "bayes"}
	result, err := tr.Run(ds, "position", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Evaluations) != 2 {
		t.Fatalf("both candidates should be evaluated, got %d", len(result.Evaluations))
	}
	if result.Evaluation("logistic") == nil || result.Evaluation("bayes") == nil {
		t.Fatal("metrics table should name both candidates")
	}
	if result.Champion == "" {
		t.Fatal("a champion must be selected")
	}
	champ := result.Evaluation(result.Champion)
	if float64(champ.ROCAUC.Mean) < 0.5 {
		t.Errorf("champion ROC-AUC should beat chance, got %v", float64(champ.ROCAUC.Mean))
	}
	if result.ChampionModel() == nil {
		t.Error("champion full-data refit should be present")
	}
	if len(result.ROC) == 0 {
		t.Error("champion ROC curve should be computed from out-of-fold probabilities")
	}
	if result.RunID == "" {
		t.Error("run should carry an id")
	}

	// Out-of-fold probability vector structure: one entry per row
	for _, eval := range result.Evaluations {
		if len(eval.OOFProbs) != 1000 {
			t.Errorf("%s: out-of-fold vector length %d, want 1000", eval.Candidate, len(eval.OOFProbs))
		}
	}

	if math.IsNaN(float64(champ.Accuracy.Mean)) || float64(champ.Accuracy.Mean) <= 0 {
		t.Errorf("champion accuracy mean should be positive, got %v", float64(champ.Accuracy.Mean))
	}
}

func TestRunReproducible(t *testing.T) {
	run := func() *Result {
		ds := syntheticRaces(300, 0.15, 9)
		tr := New(quietLogger())
		tr.Candidates = []string{"logistic", "forest"}
		result, err := tr.Run(ds, "position", nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return result
	}

	a := run()
	b := run()

	if a.Champion != b.Champion {
		t.Fatalf("champion differs across identical runs: %s vs %s", a.Champion, b.Champion)
	}
	for i := range a.Evaluations {
		ea, eb := a.Evaluations[i], b.Evaluations[i]
		if math.Abs(float64(ea.Accuracy.Mean)-float64(eb.Accuracy.Mean)) > 1e-9 {
			t.Errorf("%s: accuracy mean differs: %v vs %v", ea.Candidate, float64(ea.Accuracy.Mean), float64(eb.Accuracy.Mean))
		}
		if !ea.ROCAUC.Mean.IsNaN() && math.Abs(float64(ea.ROCAUC.Mean)-float64(eb.ROCAUC.Mean)) > 1e-9 {
			t.Errorf("%s: roc-auc mean differs: %v vs %v", ea.Candidate, float64(ea.ROCAUC.Mean), float64(eb.ROCAUC.Mean))
		}
		for j := range ea.OOFProbs {
			if math.Abs(ea.OOFProbs[j]-eb.OOFProbs[j]) > 1e-9 {
				t.Fatalf("%s: out-of-fold probability differs at row %d", ea.Candidate, j)
			}
		}
	}
}

func TestRunMissingTarget(t *testing.T) {
	ds := syntheticRaces(50, 0.3, 2)
	tr := New(quietLogger())
	tr.Candidates = []string{"bayes"}

	_, err := tr.Run(ds, "finish_position", nil)
	var schemaErr *dataset.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("missing target should be a SchemaError, got %v", err)
	}
}

func TestRunUnknownCandidate(t *testing.T) {
	ds := syntheticRaces(50, 0.3, 3)
	tr := New(quietLogger())
	tr.Candidates = []string{"gradient_boosting"}

	if _, err := tr.Run(ds, "position", nil); err == nil {
		t.Error("unknown candidate names must be rejected")
	}
}

func TestRunResamplingErrorPropagates(t *testing.T) {
	// 12 positives across 5 folds leaves ~9-10 per training split, but
	// with k=15 SMOTE can never run
	ds := syntheticRaces(200, 0.06, 4)
	tr := New(quietLogger())
	tr.Candidates = []string{"bayes"}
	tr.SMOTEK = 50

	_, err := tr.Run(ds, "position", nil)
	var resErr *resample.ResamplingError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResamplingError, got %v", err)
	}
}

func TestRunSkipResampleFailures(t *testing.T) {
	ds := syntheticRaces(200, 0.06, 5)
	tr := New(quietLogger())
	tr.Candidates = []string{"bayes"}
	tr.SMOTEK = 50
	tr.SkipResampleFailures = true

	result, err := tr.Run(ds, "position", nil)
	if err != nil {
		t.Fatalf("skip policy should let the run finish: %v", err)
	}
	if result.Champion != "bayes" {
		t.Errorf("unexpected champion %q", result.Champion)
	}
}

func TestSelectChampionByROCAUC(t *testing.T) {
	evals := []*Evaluation{
		{Candidate: "a", ROCAUC: Aggregate{Mean: 0.7}, Accuracy: Aggregate{Mean: 0.9}},
		{Candidate: "b", ROCAUC: Aggregate{Mean: 0.9}, Accuracy: Aggregate{Mean: 0.6}},
		{Candidate: "c", ROCAUC: Aggregate{Mean: 0.5}, Accuracy: Aggregate{Mean: 0.99}},
	}
	champion, metric := selectChampion(evals)
	if champion != "b" || metric != "roc_auc" {
		t.Errorf("highest mean ROC-AUC should win, got %s by %s", champion, metric)
	}
}

func TestSelectChampionTieBrokenByAccuracy(t *testing.T) {
	evals := []*Evaluation{
		{Candidate: "a", ROCAUC: Aggregate{Mean: 0.8}, Accuracy: Aggregate{Mean: 0.7}},
		{Candidate: "b", ROCAUC: Aggregate{Mean: 0.8}, Accuracy: Aggregate{Mean: 0.9}},
	}
	champion, _ := selectChampion(evals)
	if champion != "b" {
		t.Errorf("accuracy should break ROC-AUC ties, got %s", champion)
	}
}

func TestSelectChampionAccuracyFallback(t *testing.T) {
	nan := Metric(math.NaN())
	evals := []*Evaluation{
		{Candidate: "a", ROCAUC: Aggregate{Mean: nan}, Accuracy: Aggregate{Mean: 0.7}},
		{Candidate: "b", ROCAUC: Aggregate{Mean: nan}, Accuracy: Aggregate{Mean: 0.85}},
	}
	champion, metric := selectChampion(evals)
	if champion != "b" || metric != "accuracy" {
		t.Errorf("with no ROC-AUC anywhere selection falls back to accuracy, got %s by %s", champion, metric)
	}
}

func TestSelectChampionIgnoresNaNCandidates(t *testing.T) {
	nan := Metric(math.NaN())
	evals := []*Evaluation{
		{Candidate: "a", ROCAUC: Aggregate{Mean: nan}, Accuracy: Aggregate{Mean: 0.99}},
		{Candidate: "b", ROCAUC: Aggregate{Mean: 0.6}, Accuracy: Aggregate{Mean: 0.5}},
	}
	champion, metric := selectChampion(evals)
	if champion != "b" || metric != "roc_auc" {
		t.Errorf("a candidate with ROC-AUC should beat one without, got %s by %s", champion, metric)
	}
}

func TestFeatureImportance(t *testing.T) {
	ds := syntheticRaces(300, 0.2, 6)
	tr := New(quietLogger())
	tr.Candidates = []string{"forest"}
	result, err := tr.Run(ds, "position", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	imp := result.FeatureImportance()
	if len(imp) != len(result.FeatureSpec.Columns) {
		t.Fatalf("forest importance should cover every feature, got %d", len(imp))
	}
	for col, w := range imp {
		if w < 0 {
			t.Errorf("importance for %s should be non-negative, got %v", col, w)
		}
	}

	tr2 := New(quietLogger())
	tr2.Candidates = []string{"knn"}
	result2, err := tr2.Run(ds, "position", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result2.FeatureImportance()) != 0 {
		t.Error("knn exposes no importances; the mapping should be empty, not an error")
	}
}
