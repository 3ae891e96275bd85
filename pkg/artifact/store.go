// Package artifact persists trained model bundles to versioned storage and
// loads the newest one back for prediction. Every save writes a
// timestamp-qualified copy and then repoints a latest alias; loads go
// through the alias and are cached for the process lifetime.
package artifact

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gallopml/gallop/pkg/dataset"
	"github.com/gallopml/gallop/pkg/logx"
	"github.com/gallopml/gallop/pkg/model"
	"github.com/gallopml/gallop/pkg/preprocess"
	"github.com/gallopml/gallop/pkg/retry"
	"github.com/gallopml/gallop/pkg/train"
)

// FormatVersion is bumped on any incompatible change to the bundle layout
const FormatVersion = 1

const (
	latestModelPath = "latest/model.gob"
	latestMetaPath  = "latest/meta.json"
	runPrefix       = "runs"
)

// ArtifactError reports a storage or consistency failure in the store
type ArtifactError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("artifact: %s %s failed", e.Op, e.Path)
	}
	return fmt.Sprintf("artifact: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Bundle is the self-contained unit prediction needs: the champion model,
// the fitted preprocessing state, and the ordered feature spec it was
// trained against
type Bundle struct {
	FormatVersion int
	RunID         string
	Version       string
	Champion      string
	Threshold     float64
	Spec          *dataset.FeatureSpec
	Pipeline      *preprocess.Pipeline
	Model         model.Classifier
	TrainedAt     time.Time
}

// Meta is the JSON metadata blob written alongside each model blob. It
// carries everything an operator inspects without decoding the model.
type Meta struct {
	FormatVersion   int                 `json:"format_version"`
	RunID           string              `json:"run_id"`
	Version         string              `json:"version"`
	Champion        string              `json:"champion"`
	SelectionMetric string              `json:"selection_metric"`
	Threshold       float64             `json:"threshold"`
	Features        []string            `json:"features"`
	Evaluations     []*train.Evaluation `json:"evaluations"`
	ROC             []train.ROCPoint    `json:"roc,omitempty"`
	Importance      map[string]float64  `json:"feature_importance,omitempty"`
	TrainedAt       time.Time           `json:"trained_at"`
}

// Store is the process-wide artifact registry. The loaded bundle is cached
// until ClearCache or the next Save from this process; a bundle saved by
// another process is only observed by a fresh load.
type Store struct {
	storage Storage
	retry   *retry.Runner
	logger  *logx.Logger

	mu     sync.Mutex
	cached *Bundle
}

// NewStore wraps a storage backend. Writes go through a bounded retry so a
// transiently unreachable backend does not fail a finished training run.
func NewStore(storage Storage, logger *logx.Logger) *Store {
	return &Store{
		storage: storage,
		retry:   retry.NewRunner(retry.DefaultConfig()),
		logger:  logger,
	}
}

// Save persists the run's champion as a new immutable version and repoints
// the latest alias at it. A failure here leaves the in-memory result fully
// usable; the caller decides whether to retry.
func (s *Store) Save(result *train.Result) (string, error) {
	champ := result.ChampionModel()
	if champ == nil {
		return "", &ArtifactError{Op: "save", Path: runPrefix, Err: fmt.Errorf("result has no champion model")}
	}

	version := fmt.Sprintf("%s-%.8s", result.TrainedAt.UTC().Format("20060102T150405Z"), result.RunID)
	bundle := &Bundle{
		FormatVersion: FormatVersion,
		RunID:         result.RunID,
		Version:       version,
		Champion:      result.Champion,
		Threshold:     result.Threshold,
		Spec:          result.FeatureSpec,
		Pipeline:      result.Pipeline,
		Model:         champ,
		TrainedAt:     result.TrainedAt,
	}

	blob, err := encodeBundle(bundle)
	if err != nil {
		return "", &ArtifactError{Op: "encode", Path: version, Err: err}
	}
	meta := &Meta{
		FormatVersion:   FormatVersion,
		RunID:           result.RunID,
		Version:         version,
		Champion:        result.Champion,
		SelectionMetric: result.SelectionMetric,
		Threshold:       result.Threshold,
		Features:        result.FeatureSpec.Columns,
		Evaluations:     result.Evaluations,
		ROC:             result.ROC,
		Importance:      result.FeatureImportance(),
		TrainedAt:       result.TrainedAt,
	}
	metaBlob, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", &ArtifactError{Op: "encode", Path: version, Err: err}
	}

	// Versioned copy first, alias last; the model blob precedes the meta
	// blob so an alias meta always refers to a readable model
	writes := []struct {
		path string
		data []byte
	}{
		{runPrefix + "/" + version + "/model.gob", blob},
		{runPrefix + "/" + version + "/meta.json", metaBlob},
		{latestModelPath, blob},
		{latestMetaPath, metaBlob},
	}
	for _, w := range writes {
		w := w
		err := s.retry.Do(context.Background(), func() error {
			return s.storage.Put(w.path, w.data)
		})
		if err != nil {
			return "", &ArtifactError{Op: "put", Path: w.path, Err: err}
		}
	}

	s.mu.Lock()
	s.cached = bundle
	s.mu.Unlock()

	s.logger.Info("artifact saved",
		"version", version,
		"champion", result.Champion,
		"model_bytes", len(blob),
	)
	return version, nil
}

// LoadLatest returns the bundle behind the latest alias. A store that has
// never been saved to returns (nil, nil); an alias pointing at a missing
// or unreadable blob is an ArtifactError.
func (s *Store) LoadLatest() (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	metaExists, err := s.storage.Exists(latestMetaPath)
	if err != nil {
		return nil, &ArtifactError{Op: "stat", Path: latestMetaPath, Err: err}
	}
	modelExists, err := s.storage.Exists(latestModelPath)
	if err != nil {
		return nil, &ArtifactError{Op: "stat", Path: latestModelPath, Err: err}
	}
	if !metaExists && !modelExists {
		return nil, nil
	}
	if metaExists != modelExists {
		return nil, &ArtifactError{Op: "load", Path: "latest", Err: fmt.Errorf("alias pair incomplete (meta=%v model=%v)", metaExists, modelExists)}
	}

	metaBlob, err := s.storage.Get(latestMetaPath)
	if err != nil {
		return nil, &ArtifactError{Op: "get", Path: latestMetaPath, Err: err}
	}
	var meta Meta
	if err := json.Unmarshal(metaBlob, &meta); err != nil {
		return nil, &ArtifactError{Op: "decode", Path: latestMetaPath, Err: err}
	}
	if meta.FormatVersion != FormatVersion {
		return nil, &ArtifactError{Op: "load", Path: latestMetaPath, Err: fmt.Errorf("unsupported format version %d", meta.FormatVersion)}
	}

	blob, err := s.storage.Get(latestModelPath)
	if err != nil {
		return nil, &ArtifactError{Op: "get", Path: latestModelPath, Err: err}
	}
	bundle, err := decodeBundle(blob)
	if err != nil {
		return nil, &ArtifactError{Op: "decode", Path: latestModelPath, Err: err}
	}

	s.cached = bundle
	s.logger.Info("artifact loaded",
		"version", bundle.Version,
		"champion", bundle.Champion,
		"trained_at", bundle.TrainedAt.Format(time.RFC3339),
	)
	return bundle, nil
}

// Versions lists the saved immutable versions, oldest first
func (s *Store) Versions() ([]string, error) {
	names, err := s.storage.List(runPrefix)
	if err != nil {
		return nil, &ArtifactError{Op: "list", Path: runPrefix, Err: err}
	}
	return names, nil
}

// ClearCache drops the cached bundle so the next load re-reads storage
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func encodeBundle(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBundle(blob []byte) (*Bundle, error) {
	var b Bundle
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}
