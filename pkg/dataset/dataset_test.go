package dataset

import (
	"errors"
	"strings"
	"testing"
)

const sampleCSV = `age,weight,track,position
4,512,turf,1
5,498,dirt,0
3,,turf,0
6,530,,1
`

func loadSample(t *testing.T) *Dataset {
	t.Helper()
	ds, err := LoadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	return ds
}

func TestLoadCSV(t *testing.T) {
	ds := loadSample(t)
	if len(ds.Columns) != 4 {
		t.Errorf("expected 4 columns, got %d", len(ds.Columns))
	}
	if len(ds.Rows) != 4 {
		t.Errorf("expected 4 rows, got %d", len(ds.Rows))
	}
	if ds.Rows[0]["track"] != "turf" {
		t.Errorf("unexpected cell value: %q", ds.Rows[0]["track"])
	}
	if !IsMissing(ds.Rows[2]["weight"]) {
		t.Error("empty weight cell should be missing")
	}
}

func TestLabels(t *testing.T) {
	ds := loadSample(t)
	y, err := ds.Labels("position")
	if err != nil {
		t.Fatalf("Labels failed: %v", err)
	}
	want := []int{1, 0, 0, 1}
	for i := range want {
		if y[i] != want[i] {
			t.Errorf("label %d should be %d, got %d", i, want[i], y[i])
		}
	}
}

func TestLabelsMissingTarget(t *testing.T) {
	ds := loadSample(t)
	_, err := ds.Labels("finish")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("missing target should be a SchemaError, got %v", err)
	}
	if len(schemaErr.Columns) != 1 || schemaErr.Columns[0] != "finish" {
		t.Errorf("SchemaError should name the missing column, got %v", schemaErr.Columns)
	}
}

func TestLabelsNonBinary(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader("a,position\n1,2\n"))
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if _, err := ds.Labels("position"); err == nil {
		t.Error("non-binary target value should be rejected")
	}
}

func TestResolveFeaturesDefault(t *testing.T) {
	ds := loadSample(t)
	spec, err := ResolveFeatures(ds, "position", nil, false)
	if err != nil {
		t.Fatalf("ResolveFeatures failed: %v", err)
	}
	want := []string{"age", "weight", "track"}
	if len(spec.Columns) != len(want) {
		t.Fatalf("expected %d feature columns, got %v", len(want), spec.Columns)
	}
	for i, col := range want {
		if spec.Columns[i] != col {
			t.Errorf("feature %d should be %q (native order), got %q", i, col, spec.Columns[i])
		}
	}
	if spec.Kind(0) != Numeric || spec.Kind(1) != Numeric {
		t.Error("age and weight should resolve as numeric")
	}
	if spec.Kind(2) != Categorical {
		t.Error("track should resolve as categorical")
	}
}

func TestResolveFeaturesAllowList(t *testing.T) {
	ds := loadSample(t)
	spec, err := ResolveFeatures(ds, "position", []string{"weight", "age"}, false)
	if err != nil {
		t.Fatalf("ResolveFeatures failed: %v", err)
	}
	if spec.Columns[0] != "weight" || spec.Columns[1] != "age" {
		t.Errorf("allow-list order must be preserved, got %v", spec.Columns)
	}
}

func TestResolveFeaturesMissingAllowListColumns(t *testing.T) {
	ds := loadSample(t)
	_, err := ResolveFeatures(ds, "position", []string{"age", "jockey", "trainer"}, false)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("missing allow-list column should be a SchemaError, got %v", err)
	}
	if len(schemaErr.Columns) != 2 {
		t.Errorf("SchemaError should name both missing columns, got %v", schemaErr.Columns)
	}
}

func TestResolveFeaturesStrictMode(t *testing.T) {
	ds := loadSample(t)
	_, err := ResolveFeatures(ds, "position", nil, true)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("strict mode should reject categorical track column, got %v", err)
	}
	if len(schemaErr.Columns) != 1 || schemaErr.Columns[0] != "track" {
		t.Errorf("SchemaError should name track, got %v", schemaErr.Columns)
	}
}

func TestFromMaps(t *testing.T) {
	rows := []map[string]interface{}{
		{"age": 4.0, "track": "turf", "position": 1.0},
		{"age": 5.0, "track": nil, "position": 0.0},
	}
	ds, err := FromMaps(rows)
	if err != nil {
		t.Fatalf("FromMaps failed: %v", err)
	}
	// Columns are sorted for stability
	want := []string{"age", "position", "track"}
	for i, col := range want {
		if ds.Columns[i] != col {
			t.Errorf("column %d should be %q, got %q", i, col, ds.Columns[i])
		}
	}
	if ds.Rows[0]["age"] != "4" {
		t.Errorf("numeric cell should render compactly, got %q", ds.Rows[0]["age"])
	}
	if !IsMissing(ds.Rows[1]["track"]) {
		t.Error("nil cell should be missing")
	}
}

func TestSummarize(t *testing.T) {
	ds := loadSample(t)
	sum, err := ds.Summarize("position", nil)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if sum.Rows != 4 || sum.Columns != 4 {
		t.Errorf("unexpected shape: %d x %d", sum.Rows, sum.Columns)
	}
	if sum.PositiveRate != 0.5 {
		t.Errorf("positive rate should be 0.5, got %v", sum.PositiveRate)
	}
	if len(sum.FeatureColumns) != 3 {
		t.Errorf("expected 3 feature columns, got %v", sum.FeatureColumns)
	}
}
