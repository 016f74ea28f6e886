package format

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"docpipe/pkg/models"

	"github.com/xuri/excelize/v2"
)

// DecodeTable parses an uploaded spreadsheet (.csv or .xlsx) into a
// RawTable. Fully empty rows and columns are dropped, merged xlsx cells are
// filled with their top-left value, and blank header cells get positional
// names.
func DecodeTable(raw []byte, filename string) (*models.RawTable, error) {
	if len(raw) == 0 {
		return nil, &FormatError{Cause: "empty spreadsheet file"}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	var rows [][]string
	var err error

	switch ext {
	case ".csv":
		rows, err = decodeCSV(raw)
	case ".xlsx":
		rows, err = decodeXLSX(raw)
	default:
		return nil, formatErrorf("unsupported spreadsheet format %q (expected .csv or .xlsx)", ext)
	}
	if err != nil {
		return nil, err
	}

	rows = dropEmptyRows(rows)
	if len(rows) == 0 {
		return nil, &FormatError{Cause: "spreadsheet has no rows"}
	}
	rows = dropEmptyColumns(rows)
	if len(rows[0]) == 0 {
		return nil, &FormatError{Cause: "spreadsheet has no columns"}
	}

	header := rows[0]
	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = h
	}

	data := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		row := make([]string, len(columns))
		for i := range columns {
			if i < len(r) {
				row[i] = strings.TrimSpace(r[i])
			}
		}
		data = append(data, row)
	}

	name := strings.TrimSuffix(filepath.Base(filename), ext)
	return &models.RawTable{Name: name, Columns: columns, Rows: data}, nil
}

func decodeCSV(raw []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, formatErrorf("unreadable CSV: %v", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func decodeXLSX(raw []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &FormatError{Cause: "unreadable xlsx workbook"}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Cause: "xlsx workbook has no sheets"}
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, formatErrorf("unreadable xlsx sheet %q", sheet)
	}

	if err := fillMergedCells(f, sheet, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// fillMergedCells copies each merged range's top-left value into every cell
// of the range, matching how the spreadsheets are meant to be read.
func fillMergedCells(f *excelize.File, sheet string, rows [][]string) error {
	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return formatErrorf("unreadable merged cells in sheet %q", sheet)
	}
	for _, m := range merges {
		startCol, startRow, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			continue
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil {
			continue
		}
		value := m.GetCellValue()
		for r := startRow; r <= endRow; r++ {
			for c := startCol; c <= endCol; c++ {
				if r-1 < len(rows) && c-1 < len(rows[r-1]) {
					rows[r-1][c-1] = value
				}
			}
		}
	}
	return nil
}

func dropEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, r := range rows {
		empty := true
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, r)
		}
	}
	return out
}

func dropEmptyColumns(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	keep := make([]bool, width)
	for _, r := range rows {
		for i, c := range r {
			if strings.TrimSpace(c) != "" {
				keep[i] = true
			}
		}
	}

	out := make([][]string, len(rows))
	for ri, r := range rows {
		var row []string
		for i := 0; i < width; i++ {
			if !keep[i] {
				continue
			}
			if i < len(r) {
				row = append(row, r[i])
			} else {
				row = append(row, "")
			}
		}
		out[ri] = row
	}
	return out
}

// EncodeTableCSV renders a cleaned dataset as CSV, the format the cleaned
// dataset artifact is stored in.
func EncodeTableCSV(ds *models.CleanedDataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("encode csv header: %w", err)
	}

	for r := 0; r < ds.RowCount; r++ {
		row := make([]string, len(ds.Columns))
		for i, c := range ds.Columns {
			if r < len(c.Cells) {
				row[i] = c.Cells[r]
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("encode csv row %d: %w", r, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
