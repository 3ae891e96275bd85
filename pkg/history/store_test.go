package history

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/gallopml/gallop/pkg/logx"
	"github.com/gallopml/gallop/pkg/train"
)

func openTestStore(t *testing.T, config Config) *Store {
	t.Helper()
	if config.Path == "" {
		config.Path = filepath.Join(t.TempDir(), "history.db")
	}
	store, err := Open(config, logx.NewWithOutput("error", io.Discard))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(runID string) *train.Result {
	return &train.Result{
		RunID:           runID,
		Champion:        "forest",
		SelectionMetric: "roc_auc",
		Threshold:       0.5,
		Evaluations: []*train.Evaluation{
			{Candidate: "forest", Accuracy: train.Aggregate{Mean: 0.9, Std: 0.02}},
		},
		TrainedAt: time.Now().UTC(),
	}
}

func TestRecordAndFetchRun(t *testing.T) {
	store := openTestStore(t, Config{})

	if err := store.RecordRun(sampleResult("run-1")); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("want 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.RunID != "run-1" || r.Champion != "forest" || r.SelectionMetric != "roc_auc" {
		t.Errorf("unexpected record %+v", r)
	}
	if len(r.Metrics) == 0 {
		t.Error("metrics JSON should be stored")
	}
}

func TestRunRetention(t *testing.T) {
	store := openTestStore(t, Config{MaxRuns: 2})

	for i := 0; i < 5; i++ {
		if err := store.RecordRun(sampleResult(fmt.Sprintf("run-%d", i))); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	n, err := store.RunCount()
	if err != nil {
		t.Fatalf("RunCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("retention bound ignored: %d runs kept", n)
	}
	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if runs[0].RunID != "run-4" || runs[1].RunID != "run-3" {
		t.Errorf("newest runs should survive pruning, got %s, %s", runs[0].RunID, runs[1].RunID)
	}
}

func TestRecordPredictions(t *testing.T) {
	store := openTestStore(t, Config{MaxPredictions: 3})

	for i := 0; i < 5; i++ {
		err := store.RecordPrediction(fmt.Sprintf("horse-%d", i), "v1", 0.1*float64(i), i%2)
		if err != nil {
			t.Fatalf("RecordPrediction: %v", err)
		}
	}

	preds, err := store.RecentPredictions(10)
	if err != nil {
		t.Fatalf("RecentPredictions: %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("retention bound ignored: %d predictions kept", len(preds))
	}
	if preds[0].RunnerID != "horse-4" {
		t.Errorf("newest prediction first, got %s", preds[0].RunnerID)
	}
	if preds[0].ModelVersion != "v1" {
		t.Errorf("model version lost: %+v", preds[0])
	}
}

func TestDuplicateRunIDRejected(t *testing.T) {
	store := openTestStore(t, Config{})
	if err := store.RecordRun(sampleResult("dup")); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := store.RecordRun(sampleResult("dup")); err == nil {
		t.Error("run ids are unique; the duplicate insert must fail")
	}
}
