package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gallopml/gallop/pkg/logx"
)

func scrape(t *testing.T, s *Server) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("scrape status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetricsRecorded(t *testing.T) {
	s := NewServer(logx.NewWithOutput("error", io.Discard))

	s.RecordTrainingRun("success", "forest", 3*time.Second, 0.87, 0.91)
	s.RecordFoldEvaluations("forest", 5)
	s.RecordFoldEvaluations("logistic", 5)
	s.RecordPrediction("1", 0.72)
	s.RecordBacktest(12.5)

	body := scrape(t, s)

	checks := []string{
		`gallop_training_runs_total{champion="forest",status="success"} 1`,
		`gallop_champion_roc_auc 0.87`,
		`gallop_champion_accuracy 0.91`,
		`gallop_fold_evaluations_total{candidate="forest"} 5`,
		`gallop_predictions_total{label="1"} 1`,
		`gallop_backtests_total 1`,
		`gallop_backtest_roi_percent 12.5`,
		`gallop_uptime_seconds`,
	}
	for _, want := range checks {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestFailedRunKeepsChampionGauges(t *testing.T) {
	s := NewServer(logx.NewWithOutput("error", io.Discard))

	s.RecordTrainingRun("success", "forest", time.Second, 0.8, 0.9)
	s.RecordTrainingRun("error", "", time.Second, 0, 0)

	body := scrape(t, s)
	if !strings.Contains(body, `gallop_champion_roc_auc 0.8`) {
		t.Error("a failed run must not reset the champion quality gauges")
	}
	if !strings.Contains(body, `gallop_training_runs_total{champion="",status="error"} 1`) {
		t.Error("failed runs should still be counted")
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := NewServer(logx.NewWithOutput("error", io.Discard))
	b := NewServer(logx.NewWithOutput("error", io.Discard))
	a.RecordBacktest(1)
	if strings.Contains(scrape(t, b), "gallop_backtests_total 1") {
		t.Error("servers must not share collector state")
	}
}
