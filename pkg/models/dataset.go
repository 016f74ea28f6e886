package models

// ColumnType is the semantic type inferred for a column during cleaning.
type ColumnType string

const (
	ColumnNumeric     ColumnType = "numeric"
	ColumnCategorical ColumnType = "categorical"
	ColumnDatetime    ColumnType = "datetime"
	ColumnText        ColumnType = "text"
)

// RawTable is the decoded form of an uploaded spreadsheet before cleaning.
// Cells are kept as strings; type inference happens in the cleaning engine.
type RawTable struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Column is one cleaned, typed column. Cells hold canonical string forms:
// numerics via strconv, datetimes as RFC 3339, missing text/datetime cells
// stay empty.
type Column struct {
	Name  string     `json:"name"`
	Type  ColumnType `json:"type"`
	Cells []string   `json:"cells"`
}

// ColumnReport records what cleaning did to a single column.
type ColumnReport struct {
	Type       ColumnType `json:"type"`
	Coerced    int        `json:"coerced"`
	Filled     int        `json:"filled"`
	Flagged    int        `json:"flagged"`
	OutlierIdx []int      `json:"outlier_idx,omitempty"`
	AllMissing bool       `json:"all_missing,omitempty"`
}

// CleaningReport summarizes a full cleaning pass. Duplicate rows are
// flagged, never removed.
type CleaningReport struct {
	Coerced       int                     `json:"coerced"`
	Filled        int                     `json:"filled"`
	Flagged       int                     `json:"flagged"`
	DuplicateRows []int                   `json:"duplicate_rows,omitempty"`
	Columns       map[string]ColumnReport `json:"columns"`
}

// CleanedDataset is the normalized tabular representation produced by the
// cleaning engine. It is derived data: re-cleaning produces a new instance,
// never an in-place edit. Fingerprint is a sha256 over the column names,
// types, and cells, used to verify resume does not recompute cleaning.
type CleanedDataset struct {
	Source      string         `json:"source"`
	Columns     []Column       `json:"columns"`
	RowCount    int            `json:"row_count"`
	Report      CleaningReport `json:"report"`
	Fingerprint string         `json:"fingerprint"`
}

// Column returns the named column, or nil.
func (d *CleanedDataset) Column(name string) *Column {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}

// FirstOfType returns the first column with the given type, or nil.
func (d *CleanedDataset) FirstOfType(t ColumnType) *Column {
	for i := range d.Columns {
		if d.Columns[i].Type == t {
			return &d.Columns[i]
		}
	}
	return nil
}
