// Package api serves the gallopd HTTP interface: training, prediction,
// race ranking, backtesting, and status over plain JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gallopml/gallop/pkg/artifact"
	"github.com/gallopml/gallop/pkg/backtest"
	"github.com/gallopml/gallop/pkg/config"
	"github.com/gallopml/gallop/pkg/dataset"
	"github.com/gallopml/gallop/pkg/history"
	"github.com/gallopml/gallop/pkg/logx"
	"github.com/gallopml/gallop/pkg/metrics"
	"github.com/gallopml/gallop/pkg/predict"
	"github.com/gallopml/gallop/pkg/resample"
	"github.com/gallopml/gallop/pkg/train"
)

// Server wires the training and serving components behind HTTP handlers
type Server struct {
	config    *config.Config
	store     *artifact.Store
	predictor *predict.Predictor
	history   *history.Store
	metrics   *metrics.Server
	logger    *logx.Logger
	server    *http.Server

	// trainMu serializes training: one run in flight per deployment
	trainMu sync.Mutex
}

// NewServer assembles the API server. history and metrics may be nil when
// those subsystems are disabled.
func NewServer(cfg *config.Config, store *artifact.Store, hist *history.Store, met *metrics.Server, logger *logx.Logger) *Server {
	return &Server{
		config:    cfg,
		store:     store,
		predictor: predict.New(store, logger),
		history:   hist,
		metrics:   met,
		logger:    logger,
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/train", s.handleTrain)
	mux.HandleFunc("/api/v1/predict", s.handlePredict)
	mux.HandleFunc("/api/v1/race", s.handleRace)
	mux.HandleFunc("/api/v1/backtest", s.handleBacktest)
	mux.HandleFunc("/api/v1/backtest/strategies", s.handleStrategies)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Start serves the API on the given address
func (s *Server) Start(addr string) error {
	s.logger.Info("starting api server", "addr", addr)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server error", "error", err.Error())
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

type trainRequest struct {
	Rows       []map[string]interface{} `json:"rows"`
	Candidates []string                 `json:"candidates,omitempty"`
	Threshold  float64                  `json:"threshold,omitempty"`
}

type trainResponse struct {
	*train.Result
	ArtifactVersion string `json:"artifact_version,omitempty"`
	ArtifactError   string `json:"artifact_error,omitempty"`
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if !s.trainMu.TryLock() {
		writeJSONError(w, http.StatusConflict, "a training run is already in flight")
		return
	}
	defer s.trainMu.Unlock()

	ds, candidates, threshold, err := s.parseTrainRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	trainer := train.New(s.logger)
	trainer.Folds = s.config.Folds
	trainer.SMOTEK = s.config.SMOTEKNeighbors
	trainer.Seed = s.config.RandomSeed
	trainer.Threshold = threshold
	trainer.Strict = s.config.StrictNumeric
	trainer.Candidates = candidates

	started := time.Now()
	result, err := trainer.Run(ds, s.config.TargetColumn, s.config.FeatureColumns)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTrainingRun("error", "", time.Since(started), 0, 0)
		}
		s.writeError(w, err)
		return
	}

	resp := trainResponse{Result: result}
	if version, err := s.store.Save(result); err != nil {
		// The in-memory result is still good; report the save failure
		s.logger.Error("artifact save failed", "error", err.Error())
		resp.ArtifactError = err.Error()
	} else {
		resp.ArtifactVersion = version
	}

	if s.history != nil {
		if err := s.history.RecordRun(result); err != nil {
			s.logger.Warn("history record failed", "error", err.Error())
		}
	}
	if s.metrics != nil {
		champ := result.Evaluation(result.Champion)
		s.metrics.RecordTrainingRun("success", result.Champion, time.Since(started),
			float64(champ.ROCAUC.Mean), float64(champ.Accuracy.Mean))
		for _, eval := range result.Evaluations {
			s.metrics.RecordFoldEvaluations(eval.Candidate, len(eval.Folds))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseTrainRequest(r *http.Request) (*dataset.Dataset, []string, float64, error) {
	candidates := s.config.Candidates
	threshold := s.config.DecisionThreshold

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		ds, err := dataset.LoadCSV(r.Body)
		return ds, candidates, threshold, err
	}

	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, 0, fmt.Errorf("invalid request body: %w", err)
	}
	ds, err := dataset.FromMaps(req.Rows)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(req.Candidates) > 0 {
		candidates = req.Candidates
	}
	if req.Threshold > 0 {
		threshold = req.Threshold
	}
	return ds, candidates, threshold, nil
}

type predictRequest struct {
	ID     string                 `json:"id,omitempty"`
	Record map[string]interface{} `json:"record"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Record) == 0 {
		writeJSONError(w, http.StatusBadRequest, "record is required")
		return
	}

	pred, err := s.predictor.Predict(dataset.RecordFromMap(req.Record))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.history != nil {
		if err := s.history.RecordPrediction(req.ID, pred.ModelVersion, pred.Probability, pred.Label); err != nil {
			s.logger.Warn("history record failed", "error", err.Error())
		}
	}
	if s.metrics != nil {
		s.metrics.RecordPrediction(fmt.Sprintf("%d", pred.Label), pred.Probability)
	}
	writeJSON(w, http.StatusOK, pred)
}

type raceRequest struct {
	Runners []struct {
		ID     string                 `json:"id"`
		Record map[string]interface{} `json:"record"`
	} `json:"runners"`
}

func (s *Server) handleRace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req raceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Runners) == 0 {
		writeJSONError(w, http.StatusBadRequest, "runners are required")
		return
	}

	runners := make([]predict.Runner, 0, len(req.Runners))
	for i, rr := range req.Runners {
		id := rr.ID
		if id == "" {
			id = fmt.Sprintf("runner-%d", i+1)
		}
		runners = append(runners, predict.Runner{ID: id, Record: dataset.RecordFromMap(rr.Record)})
	}

	ranked, err := s.predictor.RankRace(runners)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.metrics != nil {
		for _, rr := range ranked {
			label := "0"
			if rr.Probability >= s.config.DecisionThreshold {
				label = "1"
			}
			s.metrics.RecordPrediction(label, rr.Probability)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ranking": ranked})
}

type backtestRequest struct {
	Rows     []map[string]interface{} `json:"rows"`
	Preset   string                   `json:"preset,omitempty"`
	Strategy *backtest.Strategy       `json:"strategy,omitempty"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeJSONError(w, http.StatusBadRequest, "rows are required")
		return
	}

	strategy := backtest.Strategy{}
	if req.Strategy != nil {
		strategy = *req.Strategy
	} else if req.Preset != "" {
		preset, ok := backtest.Preset(req.Preset)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown strategy preset "+req.Preset)
			return
		}
		strategy = preset
	}

	ds, err := dataset.FromMaps(req.Rows)
	if err != nil {
		s.writeError(w, err)
		return
	}
	actuals, err := ds.Labels(s.config.TargetColumn)
	if err != nil {
		s.writeError(w, err)
		return
	}

	probs := make([]float64, len(ds.Rows))
	for i, row := range ds.Rows {
		pred, err := s.predictor.Predict(row)
		if err != nil {
			s.writeError(w, err)
			return
		}
		probs[i] = pred.Probability
	}

	outcomes, err := backtest.Outcomes(probs, actuals, s.config.DecisionThreshold)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result, err := backtest.Run(outcomes, strategy)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.RecordBacktest(result.ROIPercent)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"strategies": backtest.Presets()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"trained": false,
	}

	bundle, err := s.store.LoadLatest()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if bundle != nil {
		status["trained"] = true
		status["champion"] = bundle.Champion
		status["model_version"] = bundle.Version
		status["trained_at"] = bundle.TrainedAt
		status["features"] = bundle.Spec.Columns
		status["threshold"] = bundle.Threshold
	}
	if versions, err := s.store.Versions(); err == nil {
		status["versions"] = versions
	}
	if s.history != nil {
		if runs, err := s.history.RecentRuns(5); err == nil {
			status["recent_runs"] = runs
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps typed domain failures to 4xx and everything else to 5xx
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		schemaErr   *dataset.SchemaError
		resampleErr *resample.ResamplingError
		artifactErr *artifact.ArtifactError
		notTrained  *predict.NotTrainedError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &resampleErr), errors.As(err, &notTrained):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &artifactErr):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
