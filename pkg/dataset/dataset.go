// Package dataset provides the runner-level tabular data model, CSV loading,
// and feature column resolution for the training pipeline.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Missing value sentinels accepted in raw tables
var missingSentinels = map[string]bool{
	"":    true,
	"NA":  true,
	"N/A": true,
	"NaN": true,
	"nan": true,
	"null": true,
}

// IsMissing reports whether a raw cell value counts as missing
func IsMissing(v string) bool {
	return missingSentinels[v]
}

// Record is a single row: column name to raw cell value
type Record map[string]string

// Dataset is an ordered sequence of records sharing one column set
type Dataset struct {
	Columns []string
	Rows    []Record
}

// SchemaError reports a dataset schema problem: missing target, missing
// configured feature columns, or a non-numeric column in strict mode
type SchemaError struct {
	Msg     string
	Columns []string
}

func (e *SchemaError) Error() string {
	if len(e.Columns) > 0 {
		return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.Columns, ", "))
	}
	return e.Msg
}

// LoadCSV reads a dataset from CSV with a header row
func LoadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(col)
	}

	ds := &Dataset{Columns: columns}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", len(ds.Rows)+2, err)
		}
		row := make(Record, len(columns))
		for i, col := range columns {
			row[col] = rec[i]
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// LoadCSVFile reads a dataset from a CSV file on disk
func LoadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// FromMaps builds a dataset from decoded JSON rows. The column order is
// taken from the first row's sorted keys so it is stable across calls.
func FromMaps(rows []map[string]interface{}) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows provided")
	}
	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	ds := &Dataset{Columns: columns}
	for _, raw := range rows {
		row := make(Record, len(columns))
		for _, col := range columns {
			row[col] = cellString(raw[col])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// cellString renders a decoded JSON value as a raw cell value
func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// RecordFromMap renders a decoded JSON object as a record
func RecordFromMap(m map[string]interface{}) Record {
	rec := make(Record, len(m))
	for k, v := range m {
		rec[k] = cellString(v)
	}
	return rec
}

// HasColumn reports whether the dataset contains the named column
func (d *Dataset) HasColumn(name string) bool {
	for _, col := range d.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// Column returns the raw values of one column in row order
func (d *Dataset) Column(name string) []string {
	out := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[name]
	}
	return out
}

// IsNumericColumn reports whether every non-missing value in the column
// parses as a float. A fully-missing column counts as numeric.
func (d *Dataset) IsNumericColumn(name string) bool {
	for _, row := range d.Rows {
		v := row[name]
		if IsMissing(v) {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}

// Labels extracts the binary target column as an int vector.
// Returns a SchemaError when the target column is absent and a plain error
// when a value is not a 0/1 label.
func (d *Dataset) Labels(target string) ([]int, error) {
	if !d.HasColumn(target) {
		return nil, &SchemaError{Msg: "target column not found", Columns: []string{target}}
	}
	y := make([]int, len(d.Rows))
	for i, row := range d.Rows {
		v := strings.TrimSpace(row[target])
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: target value %q is not numeric", i, v)
		}
		switch f {
		case 0:
			y[i] = 0
		case 1:
			y[i] = 1
		default:
			return nil, fmt.Errorf("row %d: target value %v is not a binary 0/1 label", i, f)
		}
	}
	return y, nil
}

// Summary describes a loaded dataset for the data inspection endpoint
type Summary struct {
	Rows           int      `json:"rows"`
	Columns        int      `json:"columns"`
	TargetColumn   string   `json:"target_column"`
	PositiveRate   float64  `json:"positive_rate"`
	FeatureColumns []string `json:"feature_columns"`
}

// Summarize computes row/column counts, the positive label rate, and the
// resolved feature list for the dataset
func (d *Dataset) Summarize(target string, allowList []string) (*Summary, error) {
	y, err := d.Labels(target)
	if err != nil {
		return nil, err
	}
	spec, err := ResolveFeatures(d, target, allowList, false)
	if err != nil {
		return nil, err
	}
	pos := 0
	for _, label := range y {
		pos += label
	}
	rate := 0.0
	if len(y) > 0 {
		rate = float64(pos) / float64(len(y))
	}
	return &Summary{
		Rows:           len(d.Rows),
		Columns:        len(d.Columns),
		TargetColumn:   target,
		PositiveRate:   rate,
		FeatureColumns: spec.Columns,
	}, nil
}
