package format_test

import (
	"testing"

	"docpipe/internal/format"
	"docpipe/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DecodeTable (CSV) ---

func TestDecodeTable_CSV(t *testing.T) {
	raw := []byte("region,revenue\nnorth,100\nsouth,200\n")

	table, err := format.DecodeTable(raw, "sales.csv")
	require.NoError(t, err)

	assert.Equal(t, "sales", table.Name)
	assert.Equal(t, []string{"region", "revenue"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"north", "100"}, table.Rows[0])
}

func TestDecodeTable_RaggedRowsPadded(t *testing.T) {
	raw := []byte("a,b,c\n1,2\n4,5,6\n")

	table, err := format.DecodeTable(raw, "ragged.csv")
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"1", "2", ""}, table.Rows[0])
}

func TestDecodeTable_DropsEmptyRowsAndColumns(t *testing.T) {
	raw := []byte("a,,b\n1,,2\n,,\n3,,4\n")

	table, err := format.DecodeTable(raw, "gaps.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"1", "2"}, table.Rows[0])
	assert.Equal(t, []string{"3", "4"}, table.Rows[1])
}

func TestDecodeTable_BlankHeaderGetsPositionalName(t *testing.T) {
	raw := []byte("a,,c\n1,2,3\n")

	table, err := format.DecodeTable(raw, "headers.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "column_2", "c"}, table.Columns)
}

func TestDecodeTable_Empty(t *testing.T) {
	_, err := format.DecodeTable(nil, "empty.csv")
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
}

func TestDecodeTable_HeaderOnly(t *testing.T) {
	// A header with no data rows decodes; the cleaning engine is the one
	// that rejects empty tables.
	table, err := format.DecodeTable([]byte("a,b,c\n"), "headeronly.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, table.Columns)
	assert.Empty(t, table.Rows)
}

func TestDecodeTable_UnsupportedExtension(t *testing.T) {
	_, err := format.DecodeTable([]byte("x"), "notes.pdf")
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Cause, "unsupported spreadsheet format")
}

func TestDecodeTable_CorruptXLSX(t *testing.T) {
	_, err := format.DecodeTable([]byte("definitely not a zip archive"), "broken.xlsx")
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Cause, "unreadable xlsx")
}

// --- EncodeTableCSV ---

func TestEncodeTableCSV_Roundtrip(t *testing.T) {
	ds := &models.CleanedDataset{
		RowCount: 2,
		Columns: []models.Column{
			{Name: "region", Type: models.ColumnCategorical, Cells: []string{"north", "south"}},
			{Name: "revenue", Type: models.ColumnNumeric, Cells: []string{"100", "200"}},
		},
	}

	out, err := format.EncodeTableCSV(ds)
	require.NoError(t, err)

	table, err := format.DecodeTable(out, "roundtrip.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "revenue"}, table.Columns)
	assert.Equal(t, []string{"north", "100"}, table.Rows[0])
}

// --- DecodeTemplate ---

func validTemplate() []byte {
	return []byte(`{
		"name": "quarterly-review",
		"brief": "Q3 revenue recap for the sales org",
		"slots": [
			{"name": "cover", "kind": "title"},
			{"name": "body-1", "kind": "bullets"},
			{"name": "body-2", "kind": "bullets"}
		]
	}`)
}

func TestDecodeTemplate_Valid(t *testing.T) {
	tmpl, err := format.DecodeTemplate(validTemplate())
	require.NoError(t, err)

	assert.Equal(t, "quarterly-review", tmpl.Name)
	assert.Len(t, tmpl.Slots, 3)
	assert.Equal(t, "title", tmpl.Slots[0].Kind)
}

func TestDecodeTemplate_BadJSON(t *testing.T) {
	_, err := format.DecodeTemplate([]byte("{not json"))
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Cause, "unsupported slide-template schema")
}

func TestDecodeTemplate_UnknownField(t *testing.T) {
	_, err := format.DecodeTemplate([]byte(`{"name":"x","brief":"y","slots":[],"theme":"dark"}`))
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
}

func TestDecodeTemplate_NoSlots(t *testing.T) {
	_, err := format.DecodeTemplate([]byte(`{"name":"x","brief":"y","slots":[]}`))
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Cause, "no slots")
}

func TestDecodeTemplate_BadSlotKind(t *testing.T) {
	_, err := format.DecodeTemplate([]byte(`{"name":"x","brief":"y","slots":[{"name":"s1","kind":"chart"}]}`))
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Cause, "unsupported kind")
}

// --- DecodeTranscript ---

func TestDecodeTranscript_Valid(t *testing.T) {
	text, err := format.DecodeTranscript([]byte("Alice: let's ship on Friday.\nBob: agreed.\n"))
	require.NoError(t, err)
	assert.Contains(t, text, "Alice")
}

func TestDecodeTranscript_Empty(t *testing.T) {
	_, err := format.DecodeTranscript([]byte("   \n\t  "))
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Cause, "empty transcript")
}

func TestDecodeTranscript_NotUTF8(t *testing.T) {
	_, err := format.DecodeTranscript([]byte{0xff, 0xfe, 0xfd})
	var fe *format.FormatError
	require.ErrorAs(t, err, &fe)
}
