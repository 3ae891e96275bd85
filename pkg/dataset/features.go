package dataset

// ColumnKind classifies how a feature column enters the numeric matrix
type ColumnKind int

const (
	// Numeric columns are imputed with the fit-time median and scaled
	Numeric ColumnKind = iota
	// Categorical columns are integer-encoded with an unknown fallback
	Categorical
)

func (k ColumnKind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// FeatureSpec is the ordered feature column list a model is fit against.
// The order fixes each feature's position in the numeric matrix and is
// persisted with every trained artifact. Immutable once a model is fit.
type FeatureSpec struct {
	Columns []string     `json:"columns"`
	Kinds   []ColumnKind `json:"kinds"`
}

// Kind returns the column kind for the i-th feature
func (s *FeatureSpec) Kind(i int) ColumnKind {
	return s.Kinds[i]
}

// ResolveFeatures determines the ordered feature column list for a dataset.
//
// With an allow-list, every listed column must exist; otherwise the feature
// set is all columns except the target in native column order. Non-numeric
// columns are routed to categorical encoding, unless strict is set, in
// which case they are a SchemaError.
func ResolveFeatures(d *Dataset, target string, allowList []string, strict bool) (*FeatureSpec, error) {
	var columns []string
	if len(allowList) > 0 {
		var missing []string
		for _, col := range allowList {
			if !d.HasColumn(col) {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			return nil, &SchemaError{Msg: "configured feature columns missing", Columns: missing}
		}
		columns = append(columns, allowList...)
	} else {
		if !d.HasColumn(target) {
			return nil, &SchemaError{Msg: "target column not found", Columns: []string{target}}
		}
		for _, col := range d.Columns {
			if col != target {
				columns = append(columns, col)
			}
		}
	}

	spec := &FeatureSpec{
		Columns: columns,
		Kinds:   make([]ColumnKind, len(columns)),
	}
	var nonNumeric []string
	for i, col := range columns {
		if d.IsNumericColumn(col) {
			spec.Kinds[i] = Numeric
		} else {
			spec.Kinds[i] = Categorical
			nonNumeric = append(nonNumeric, col)
		}
	}
	if strict && len(nonNumeric) > 0 {
		return nil, &SchemaError{Msg: "non-numeric feature columns in strict mode", Columns: nonNumeric}
	}
	return spec, nil
}
