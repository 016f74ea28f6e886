// Package clean implements the deterministic, rule-based cleaning engine.
// It never touches the network or the model service: the same input and
// options always produce the same dataset, report, and fingerprint.
package clean

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"docpipe/pkg/models"
)

// Error codes for deterministic data defects. Non-retryable.
const (
	CodeEmptyInput = "EMPTY_INPUT"
)

// Error reports a data defect the engine cannot clean around.
type Error struct {
	Code  string
	Cause string
}

func (e *Error) Error() string {
	return "cleaning error " + e.Code + ": " + e.Cause
}

// Options are the engine thresholds. Values come from configuration, not
// constants; DefaultOptions mirrors the config defaults for tests.
type Options struct {
	InferenceRatio float64 // share of non-missing cells that must parse for numeric/datetime inference
	MaxCategories  int     // distinct-value cutoff for categorical inference
	OutlierMethod  string  // "iqr" or "zscore"
	IQRFactor      float64
	ZScoreLimit    float64
}

func DefaultOptions() Options {
	return Options{
		InferenceRatio: 0.9,
		MaxCategories:  20,
		OutlierMethod:  "iqr",
		IQRFactor:      1.5,
		ZScoreLimit:    3.0,
	}
}

// missingTokens are the cell values treated as absent, lowercase.
var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"null": true,
	"none": true,
	"nan":  true,
	"-":    true,
}

func isMissing(cell string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(cell))]
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

func parseDatetime(cell string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseNumeric(cell string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Table runs the full cleaning pass over a raw table. Applied column-wise
// in a fixed order so results are reproducible:
//
//  1. type inference (numeric, then datetime, then categorical, else text)
//  2. missing-value policy per inferred type
//  3. duplicate-row flagging by full-row equality
//  4. outlier flagging on numeric columns
//
// Duplicates and outliers are flagged, never removed.
func Table(t *models.RawTable, opts Options) (*models.CleanedDataset, error) {
	if t == nil || len(t.Rows) == 0 || len(t.Columns) == 0 {
		return nil, &Error{Code: CodeEmptyInput, Cause: "table has no rows or columns"}
	}

	ds := &models.CleanedDataset{
		Source:   t.Name,
		RowCount: len(t.Rows),
		Report: models.CleaningReport{
			Columns: make(map[string]models.ColumnReport, len(t.Columns)),
		},
	}

	for ci, name := range t.Columns {
		cells := make([]string, len(t.Rows))
		for ri, row := range t.Rows {
			if ci < len(row) {
				cells[ri] = strings.TrimSpace(row[ci])
			}
		}

		col, report := cleanColumn(name, cells, opts)
		ds.Columns = append(ds.Columns, col)
		ds.Report.Columns[name] = report
		ds.Report.Coerced += report.Coerced
		ds.Report.Filled += report.Filled
		ds.Report.Flagged += report.Flagged
	}

	ds.Report.DuplicateRows = duplicateRows(ds)
	ds.Report.Flagged += len(ds.Report.DuplicateRows)

	ds.Fingerprint = fingerprint(ds)
	return ds, nil
}

func cleanColumn(name string, cells []string, opts Options) (models.Column, models.ColumnReport) {
	var report models.ColumnReport

	nonMissing := 0
	numericOK := 0
	datetimeOK := 0
	distinct := make(map[string]struct{})
	for _, cell := range cells {
		if isMissing(cell) {
			continue
		}
		nonMissing++
		if _, ok := parseNumeric(cell); ok {
			numericOK++
		}
		if _, ok := parseDatetime(cell); ok {
			datetimeOK++
		}
		distinct[cell] = struct{}{}
	}

	colType := models.ColumnText
	switch {
	case nonMissing == 0:
		report.AllMissing = true
	case float64(numericOK) >= opts.InferenceRatio*float64(nonMissing):
		colType = models.ColumnNumeric
	case float64(datetimeOK) >= opts.InferenceRatio*float64(nonMissing):
		colType = models.ColumnDatetime
	case len(distinct) <= opts.MaxCategories:
		colType = models.ColumnCategorical
	}
	report.Type = colType

	out := make([]string, len(cells))
	switch colType {
	case models.ColumnNumeric:
		values := make([]float64, 0, len(cells))
		for _, cell := range cells {
			if v, ok := parseNumeric(cell); ok && !isMissing(cell) {
				values = append(values, v)
			}
		}
		median := median(values)
		for i, cell := range cells {
			switch {
			case isMissing(cell):
				out[i] = formatNumeric(median)
				report.Filled++
				report.Flagged++
			default:
				v, ok := parseNumeric(cell)
				if !ok {
					// Unparseable value in a numeric column: coerce to the
					// median and count both the coercion and the fill.
					out[i] = formatNumeric(median)
					report.Coerced++
					report.Filled++
					report.Flagged++
					continue
				}
				out[i] = formatNumeric(v)
			}
		}
		report.OutlierIdx = outliers(out, opts)
		report.Flagged += len(report.OutlierIdx)

	case models.ColumnDatetime:
		for i, cell := range cells {
			if isMissing(cell) {
				out[i] = ""
				report.Flagged++
				continue
			}
			ts, ok := parseDatetime(cell)
			if !ok {
				out[i] = ""
				report.Coerced++
				report.Flagged++
				continue
			}
			out[i] = ts.UTC().Format(time.RFC3339)
		}

	case models.ColumnCategorical:
		for i, cell := range cells {
			if isMissing(cell) {
				out[i] = "unknown"
				report.Filled++
				report.Flagged++
				continue
			}
			out[i] = cell
		}

	default: // text, including all-missing columns
		for i, cell := range cells {
			if isMissing(cell) {
				out[i] = ""
				report.Flagged++
				continue
			}
			out[i] = cell
		}
	}

	return models.Column{Name: name, Type: colType, Cells: out}, report
}

func formatNumeric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// quantile uses linear interpolation between order statistics.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func outliers(cells []string, opts Options) []int {
	values := make([]float64, len(cells))
	for i, cell := range cells {
		v, _ := parseNumeric(cell)
		values[i] = v
	}

	var lower, upper float64
	switch opts.OutlierMethod {
	case "zscore":
		mean := 0.0
		for _, v := range values {
			mean += v
		}
		mean /= float64(len(values))
		variance := 0.0
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(len(values)))
		if std == 0 {
			return nil
		}
		lower = mean - opts.ZScoreLimit*std
		upper = mean + opts.ZScoreLimit*std
	default: // iqr
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		lower = q1 - opts.IQRFactor*iqr
		upper = q3 + opts.IQRFactor*iqr
	}

	var idx []int
	for i, v := range values {
		if v < lower || v > upper {
			idx = append(idx, i)
		}
	}
	return idx
}

// duplicateRows flags every row whose full content equals an earlier row.
func duplicateRows(ds *models.CleanedDataset) []int {
	seen := make(map[string]bool, ds.RowCount)
	var dups []int
	for r := 0; r < ds.RowCount; r++ {
		var b strings.Builder
		for _, col := range ds.Columns {
			if r < len(col.Cells) {
				b.WriteString(col.Cells[r])
			}
			b.WriteByte(0x1f)
		}
		sum := sha256.Sum256([]byte(b.String()))
		key := hex.EncodeToString(sum[:])
		if seen[key] {
			dups = append(dups, r)
			continue
		}
		seen[key] = true
	}
	return dups
}

// fingerprint is a stable sha256 over column names, types, and cells. Two
// cleaning passes over the same input produce the same fingerprint, which
// is how resumption verifies it skipped recomputation.
func fingerprint(ds *models.CleanedDataset) string {
	h := sha256.New()
	for _, col := range ds.Columns {
		fmt.Fprintf(h, "%s\x1f%s\x1e", col.Name, col.Type)
		for _, cell := range col.Cells {
			h.Write([]byte(cell))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Transcript normalizes meeting-transcript text: line endings, trailing
// whitespace, and runs of blank lines. Deterministic and idempotent, so
// transcript jobs pass the cleaning stage the same way tables do.
func Transcript(text string) (string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}

	if len(out) == 0 {
		return "", &Error{Code: CodeEmptyInput, Cause: "transcript has no content"}
	}
	return strings.Join(out, "\n"), nil
}
