// Package config loads and validates the gallop daemon configuration
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config represents the gallop configuration
type Config struct {
	// Dataset
	TargetColumn   string   `json:"target_column"`
	FeatureColumns []string `json:"feature_columns,omitempty"`
	StrictNumeric  bool     `json:"strict_numeric"`

	// Training
	Folds             int      `json:"folds"`
	SMOTEKNeighbors   int      `json:"smote_k_neighbors"`
	RandomSeed        int64    `json:"random_seed"`
	DecisionThreshold float64  `json:"decision_threshold"`
	Candidates        []string `json:"candidates,omitempty"`

	// Artifacts
	ArtifactDir string `json:"artifact_dir"`

	// History
	HistoryDBPath    string `json:"history_db_path"`
	HistoryRetention int    `json:"history_retention_days"`

	// Listeners
	APIListenAddr     string `json:"api_listen_addr"`
	MetricsListenAddr string `json:"metrics_listen_addr"`
	MetricsListener   bool   `json:"metrics_listener"`

	// Logging
	LogLevel string `json:"log_level"`
}

// Default configuration values
const (
	DefaultTargetColumn      = "position"
	DefaultFolds             = 5
	DefaultSMOTEKNeighbors   = 5
	DefaultRandomSeed        = 42
	DefaultDecisionThreshold = 0.5
	DefaultArtifactDir       = "/var/lib/gallop/artifacts"
	DefaultHistoryDBPath     = "/var/lib/gallop/history.db"
	DefaultHistoryRetention  = 90
	DefaultAPIListenAddr     = ":8088"
	DefaultMetricsListenAddr = ":9101"
	DefaultLogLevel          = "info"
)

// Load loads the configuration from the given JSON file, applying defaults
// for anything not set and environment overrides on top
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.setDefaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for the configuration
func (c *Config) setDefaults() {
	c.TargetColumn = DefaultTargetColumn
	c.Folds = DefaultFolds
	c.SMOTEKNeighbors = DefaultSMOTEKNeighbors
	c.RandomSeed = DefaultRandomSeed
	c.DecisionThreshold = DefaultDecisionThreshold
	c.ArtifactDir = DefaultArtifactDir
	c.HistoryDBPath = DefaultHistoryDBPath
	c.HistoryRetention = DefaultHistoryRetention
	c.APIListenAddr = DefaultAPIListenAddr
	c.MetricsListenAddr = DefaultMetricsListenAddr
	c.MetricsListener = true
	c.LogLevel = DefaultLogLevel
}

// applyEnv applies GALLOP_* environment variable overrides
func (c *Config) applyEnv() {
	if v := os.Getenv("GALLOP_TARGET_COLUMN"); v != "" {
		c.TargetColumn = v
	}
	if v := os.Getenv("GALLOP_FEATURE_COLUMNS"); v != "" {
		cols := strings.Split(v, ",")
		c.FeatureColumns = c.FeatureColumns[:0]
		for _, col := range cols {
			if col = strings.TrimSpace(col); col != "" {
				c.FeatureColumns = append(c.FeatureColumns, col)
			}
		}
	}
	if v := os.Getenv("GALLOP_FOLDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Folds = n
		}
	}
	if v := os.Getenv("GALLOP_SMOTE_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SMOTEKNeighbors = n
		}
	}
	if v := os.Getenv("GALLOP_RANDOM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RandomSeed = n
		}
	}
	if v := os.Getenv("GALLOP_DECISION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DecisionThreshold = f
		}
	}
	if v := os.Getenv("GALLOP_ARTIFACT_DIR"); v != "" {
		c.ArtifactDir = v
	}
	if v := os.Getenv("GALLOP_HISTORY_DB"); v != "" {
		c.HistoryDBPath = v
	}
	if v := os.Getenv("GALLOP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// validate checks configuration invariants
func (c *Config) validate() error {
	if c.TargetColumn == "" {
		return fmt.Errorf("target_column must not be empty")
	}
	if c.Folds < 2 {
		return fmt.Errorf("folds must be at least 2, got %d", c.Folds)
	}
	if c.SMOTEKNeighbors < 1 {
		return fmt.Errorf("smote_k_neighbors must be at least 1, got %d", c.SMOTEKNeighbors)
	}
	if c.DecisionThreshold <= 0 || c.DecisionThreshold >= 1 {
		return fmt.Errorf("decision_threshold must be in (0,1), got %v", c.DecisionThreshold)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("history_retention_days must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}
