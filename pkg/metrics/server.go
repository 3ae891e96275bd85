// Package metrics exposes Prometheus metrics for gallopd: training runs,
// fold evaluations, served predictions, and backtests, behind a small HTTP
// listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gallopml/gallop/pkg/logx"
)

// Server provides Prometheus metrics for gallopd
type Server struct {
	logger   *logx.Logger
	registry *prometheus.Registry
	server   *http.Server
	started  time.Time

	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	foldEvaluations  *prometheus.CounterVec
	championAUC      prometheus.Gauge
	championAccuracy prometheus.Gauge
	predictions      *prometheus.CounterVec
	predictionProb   prometheus.Histogram
	backtests        prometheus.Counter
	backtestROI      prometheus.Gauge
	daemonUptime     prometheus.GaugeFunc
}

// NewServer creates a metrics server with all collectors registered on a
// private registry
func NewServer(logger *logx.Logger) *Server {
	s := &Server{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}
	s.registerMetrics()
	return s
}

func (s *Server) registerMetrics() {
	s.trainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallop_training_runs_total",
			Help: "Total number of training runs by outcome",
		},
		[]string{"status", "champion"},
	)

	s.trainingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallop_training_duration_seconds",
			Help:    "Wall-clock duration of training runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	s.foldEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallop_fold_evaluations_total",
			Help: "Total number of candidate fold evaluations",
		},
		[]string{"candidate"},
	)

	s.championAUC = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallop_champion_roc_auc",
			Help: "Mean validation ROC-AUC of the current champion",
		},
	)

	s.championAccuracy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallop_champion_accuracy",
			Help: "Mean validation accuracy of the current champion",
		},
	)

	s.predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallop_predictions_total",
			Help: "Total number of served predictions by label",
		},
		[]string{"label"},
	)

	s.predictionProb = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallop_prediction_probability",
			Help:    "Distribution of served win probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	s.backtests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallop_backtests_total",
			Help: "Total number of backtest simulations",
		},
	)

	s.backtestROI = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallop_backtest_roi_percent",
			Help: "ROI of the most recent backtest",
		},
	)

	s.daemonUptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "gallop_uptime_seconds",
			Help: "Daemon uptime in seconds",
		},
		func() float64 { return time.Since(s.started).Seconds() },
	)

	s.registry.MustRegister(
		s.trainingRuns,
		s.trainingDuration,
		s.foldEvaluations,
		s.championAUC,
		s.championAccuracy,
		s.predictions,
		s.predictionProb,
		s.backtests,
		s.backtestROI,
		s.daemonUptime,
	)
}

// RecordTrainingRun records one finished run and its champion quality
func (s *Server) RecordTrainingRun(status, champion string, duration time.Duration, auc, accuracy float64) {
	s.trainingRuns.WithLabelValues(status, champion).Inc()
	s.trainingDuration.Observe(duration.Seconds())
	if status == "success" {
		s.championAUC.Set(auc)
		s.championAccuracy.Set(accuracy)
	}
}

// RecordFoldEvaluations adds the fold count for one candidate
func (s *Server) RecordFoldEvaluations(candidate string, folds int) {
	s.foldEvaluations.WithLabelValues(candidate).Add(float64(folds))
}

// RecordPrediction records one served prediction
func (s *Server) RecordPrediction(label string, probability float64) {
	s.predictions.WithLabelValues(label).Inc()
	s.predictionProb.Observe(probability)
}

// RecordBacktest records one backtest simulation
func (s *Server) RecordBacktest(roiPercent float64) {
	s.backtests.Inc()
	s.backtestROI.Set(roiPercent)
}

// Handler returns the scrape handler, for embedding in another mux
func (s *Server) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Start serves /metrics and /health on the given address
func (s *Server) Start(addr string) error {
	s.logger.Info("starting metrics server", "addr", addr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	mux.HandleFunc("/health", s.healthHandler)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", "error", err.Error())
		}
	}()

	return nil
}

// Stop shuts the listener down gracefully
func (s *Server) Stop() error {
	s.logger.Info("stopping metrics server")
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}
