package generate_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpipe/internal/generate"
	"docpipe/pkg/models"
)

func dataset(columns ...models.Column) *models.CleanedDataset {
	rows := 0
	if len(columns) > 0 {
		rows = len(columns[0].Cells)
	}
	return &models.CleanedDataset{
		Source:   "test",
		RowCount: rows,
		Columns:  columns,
		Report:   models.CleaningReport{Columns: map[string]models.ColumnReport{}},
	}
}

// --- BuildChartSpec ---

func TestBuildChartSpec_DatetimeMakesLine(t *testing.T) {
	ds := dataset(
		models.Column{Name: "day", Type: models.ColumnDatetime, Cells: []string{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"}},
		models.Column{Name: "revenue", Type: models.ColumnNumeric, Cells: []string{"10", "20"}},
	)

	spec, err := generate.BuildChartSpec(ds)
	require.NoError(t, err)
	assert.Equal(t, generate.ChartLine, spec.Type)
	assert.Equal(t, "day", spec.XLabel)
	assert.Equal(t, []float64{10, 20}, spec.Values)
}

func TestBuildChartSpec_CategoricalMakesBarTotals(t *testing.T) {
	ds := dataset(
		models.Column{Name: "region", Type: models.ColumnCategorical, Cells: []string{"north", "south", "north"}},
		models.Column{Name: "revenue", Type: models.ColumnNumeric, Cells: []string{"10", "20", "5"}},
	)

	spec, err := generate.BuildChartSpec(ds)
	require.NoError(t, err)
	assert.Equal(t, generate.ChartBar, spec.Type)
	assert.Equal(t, []string{"north", "south"}, spec.Labels)
	assert.Equal(t, []float64{15, 20}, spec.Values)
}

func TestBuildChartSpec_NumericOnlyMakesHistogram(t *testing.T) {
	cells := make([]string, 100)
	for i := range cells {
		cells[i] = "5"
	}
	cells[99] = "50"
	ds := dataset(models.Column{Name: "latency", Type: models.ColumnNumeric, Cells: cells})

	spec, err := generate.BuildChartSpec(ds)
	require.NoError(t, err)
	assert.Equal(t, generate.ChartHistogram, spec.Type)
	require.Len(t, spec.Values, 10)
	assert.Equal(t, float64(99), spec.Values[0])
	assert.Equal(t, float64(1), spec.Values[9])
}

func TestBuildChartSpec_NoNumericColumn(t *testing.T) {
	ds := dataset(models.Column{Name: "note", Type: models.ColumnText, Cells: []string{"a", "b"}})

	_, err := generate.BuildChartSpec(ds)
	assert.ErrorIs(t, err, generate.ErrNoNumericColumn)
}

// --- BuildTrendCharts ---

func TestBuildTrendCharts_MatchesMetricToColumn(t *testing.T) {
	ds := dataset(
		models.Column{Name: "day", Type: models.ColumnDatetime, Cells: []string{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"}},
		models.Column{Name: "revenue", Type: models.ColumnNumeric, Cells: []string{"10", "20"}},
	)
	summary := &models.TrendSummary{Trends: []models.Trend{
		{Metric: "Revenue", Direction: "up", Magnitude: 12.5, Narrative: "Steady climb."},
		{Metric: "churn", Direction: "down", Magnitude: 1, Narrative: "No such column."},
	}}

	specs := generate.BuildTrendCharts(ds, summary)
	require.Len(t, specs, 1, "trends naming unknown columns are skipped")
	assert.Equal(t, generate.ChartLine, specs[0].Type)
	assert.Equal(t, "Revenue", specs[0].Metric)
	assert.Equal(t, "up", specs[0].Direction)
	assert.Equal(t, "Steady climb.", specs[0].Narrative)
	assert.Equal(t, []float64{10, 20}, specs[0].Values)
}

func TestBuildTrendCharts_OneChartPerColumn(t *testing.T) {
	ds := dataset(
		models.Column{Name: "revenue", Type: models.ColumnNumeric, Cells: []string{"10", "20"}},
	)
	summary := &models.TrendSummary{Trends: []models.Trend{
		{Metric: "revenue", Direction: "up", Magnitude: 2, Narrative: "first"},
		{Metric: "REVENUE", Direction: "flat", Magnitude: 0, Narrative: "duplicate"},
	}}

	specs := generate.BuildTrendCharts(ds, summary)
	require.Len(t, specs, 1)
	assert.Equal(t, "first", specs[0].Narrative)
}

func TestBuildTrendCharts_NilSummary(t *testing.T) {
	ds := dataset(models.Column{Name: "revenue", Type: models.ColumnNumeric, Cells: []string{"10"}})

	assert.Empty(t, generate.BuildTrendCharts(ds, nil))
	assert.Empty(t, generate.BuildTrendCharts(ds, &models.TrendSummary{}))
}

func TestRenderChartPNG(t *testing.T) {
	spec := &generate.ChartSpec{
		Type:   generate.ChartBar,
		Title:  "revenue by region",
		XLabel: "region",
		YLabel: "revenue",
		Labels: []string{"north", "south"},
		Values: []float64{15, 20},
	}

	png, err := generate.RenderChartPNG(spec)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "output is a PNG")
}

// --- BuildDeck ---

func template(slotKinds ...string) *models.SlideTemplate {
	tmpl := &models.SlideTemplate{Name: "qbr", Brief: "quarterly review"}
	for i, kind := range slotKinds {
		tmpl.Slots = append(tmpl.Slots, models.SlideTemplateSlot{
			Name: "slot-" + string(rune('a'+i)),
			Kind: kind,
		})
	}
	return tmpl
}

func sections(titles ...string) *models.SlideOutline {
	outline := &models.SlideOutline{}
	for _, title := range titles {
		outline.Sections = append(outline.Sections, models.OutlineSection{
			Title:   title,
			Bullets: []string{"point about " + title},
		})
	}
	return outline
}

func TestBuildDeck_FillsSlotsInOrder(t *testing.T) {
	deck, warnings := generate.BuildDeck(template("title", "bullets"), sections("Intro", "Numbers"))

	assert.Empty(t, warnings)
	require.Len(t, deck.Slides, 2)
	assert.Equal(t, "slot-a", deck.Slides[0].Slot)
	assert.Equal(t, "Intro", deck.Slides[0].Title)
	assert.Empty(t, deck.Slides[0].Bullets, "title slots carry no bullets")
	assert.NotEmpty(t, deck.Slides[1].Bullets)
}

func TestBuildDeck_OverflowSectionsTruncatedWithWarning(t *testing.T) {
	deck, warnings := generate.BuildDeck(
		template("title", "bullets", "bullets", "bullets", "bullets"),
		sections("s1", "s2", "s3", "s4", "s5", "s6", "s7"),
	)

	assert.Len(t, deck.Slides, 5)
	assert.Equal(t, []string{"s6", "s7"}, deck.Truncated)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "did not fit")
}

func TestBuildDeck_SpareSlotsWarn(t *testing.T) {
	deck, warnings := generate.BuildDeck(template("title", "bullets", "bullets"), sections("only"))

	assert.Len(t, deck.Slides, 1)
	assert.Empty(t, deck.Truncated)
	assert.Len(t, warnings, 2)
}

// --- RenderMinutes ---

func TestRenderMinutes(t *testing.T) {
	out := generate.RenderMinutes(&models.MeetingSummary{
		Decisions: []string{"Ship on Friday"},
		ActionItems: []models.ActionItem{
			{Owner: "alice", Task: "write release notes", Due: "2026-08-28"},
			{Owner: "", Task: "book retro room"},
		},
		KeyPoints: []string{"Churn is down"},
	}, "standup.txt")

	md := string(out)
	assert.Contains(t, md, "# Meeting Minutes")
	assert.Contains(t, md, "- Ship on Friday")
	assert.Contains(t, md, "**alice**: write release notes (due 2026-08-28)")
	assert.Contains(t, md, "**unassigned**: book retro room")
	assert.Contains(t, md, "- Churn is down")
}

func TestRenderMinutes_EmptySections(t *testing.T) {
	out := generate.RenderMinutes(&models.MeetingSummary{}, "quiet.txt")
	assert.Equal(t, 3, bytes.Count(out, []byte("None recorded.")))
}
