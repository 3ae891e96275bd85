// Package history persists training runs and served predictions to a local
// sqlite database with bounded retention, so the daemon can answer "what
// ran and what did it say" across restarts.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gallopml/gallop/pkg/logx"
	"github.com/gallopml/gallop/pkg/train"
)

// Config for the history store
type Config struct {
	Path           string
	MaxRuns        int
	MaxPredictions int
}

// Store wraps the sqlite database
type Store struct {
	db     *sql.DB
	config Config
	logger *logx.Logger
}

// RunRecord is one persisted training run
type RunRecord struct {
	ID              int64           `json:"id"`
	RunID           string          `json:"run_id"`
	Champion        string          `json:"champion"`
	SelectionMetric string          `json:"selection_metric"`
	Threshold       float64         `json:"threshold"`
	Metrics         json.RawMessage `json:"metrics"`
	TrainedAt       time.Time       `json:"trained_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PredictionRecord is one persisted prediction event
type PredictionRecord struct {
	ID           int64     `json:"id"`
	RunnerID     string    `json:"runner_id,omitempty"`
	ModelVersion string    `json:"model_version"`
	Probability  float64   `json:"probability"`
	Label        int       `json:"label"`
	CreatedAt    time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS training_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL UNIQUE,
	champion TEXT NOT NULL,
	selection_metric TEXT NOT NULL,
	threshold REAL NOT NULL,
	metrics TEXT NOT NULL,
	trained_at DATETIME NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_training_runs_trained_at ON training_runs(trained_at);

CREATE TABLE IF NOT EXISTS predictions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	runner_id TEXT,
	model_version TEXT NOT NULL,
	probability REAL NOT NULL,
	label INTEGER NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
`

// Open opens (creating if needed) the history database
func Open(config Config, logger *logx.Logger) (*Store, error) {
	if config.MaxRuns <= 0 {
		config.MaxRuns = 100
	}
	if config.MaxPredictions <= 0 {
		config.MaxPredictions = 10000
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: initialize schema: %w", err)
	}
	return &Store{db: db, config: config, logger: logger}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists one completed training run, pruning the oldest rows
// beyond the retention bound
func (s *Store) RecordRun(result *train.Result) error {
	metrics, err := json.Marshal(result.Evaluations)
	if err != nil {
		return fmt.Errorf("history: marshal metrics: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO training_runs (run_id, champion, selection_metric, threshold, metrics, trained_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Champion, result.SelectionMetric, result.Threshold, string(metrics), result.TrainedAt,
	)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	if err := s.pruneRuns(); err != nil {
		s.logger.Warn("history run pruning failed", "error", err.Error())
	}
	return nil
}

// RecordPrediction persists one served prediction
func (s *Store) RecordPrediction(runnerID, modelVersion string, probability float64, label int) error {
	_, err := s.db.Exec(
		`INSERT INTO predictions (runner_id, model_version, probability, label) VALUES (?, ?, ?, ?)`,
		runnerID, modelVersion, probability, label,
	)
	if err != nil {
		return fmt.Errorf("history: insert prediction: %w", err)
	}
	if err := s.prunePredictions(); err != nil {
		s.logger.Warn("history prediction pruning failed", "error", err.Error())
	}
	return nil
}

// RecentRuns returns the newest runs, most recent first
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, champion, selection_metric, threshold, metrics, trained_at, created_at
		 FROM training_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var metrics string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Champion, &r.SelectionMetric, &r.Threshold, &metrics, &r.TrainedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.Metrics = json.RawMessage(metrics)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentPredictions returns the newest prediction events, most recent first
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, runner_id, model_version, probability, label, created_at
		 FROM predictions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query predictions: %w", err)
	}
	defer rows.Close()

	var out []PredictionRecord
	for rows.Next() {
		var p PredictionRecord
		var runnerID sql.NullString
		if err := rows.Scan(&p.ID, &runnerID, &p.ModelVersion, &p.Probability, &p.Label, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan prediction: %w", err)
		}
		p.RunnerID = runnerID.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// RunCount returns the number of retained training runs
func (s *Store) RunCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM training_runs`).Scan(&n)
	return n, err
}

func (s *Store) pruneRuns() error {
	_, err := s.db.Exec(
		`DELETE FROM training_runs WHERE id NOT IN
		 (SELECT id FROM training_runs ORDER BY id DESC LIMIT ?)`, s.config.MaxRuns)
	return err
}

func (s *Store) prunePredictions() error {
	_, err := s.db.Exec(
		`DELETE FROM predictions WHERE id NOT IN
		 (SELECT id FROM predictions ORDER BY id DESC LIMIT ?)`, s.config.MaxPredictions)
	return err
}
