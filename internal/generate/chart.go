// Package generate turns analysis results into the files users download:
// chart specs and PNG renders, populated slide decks, and meeting minutes.
package generate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/fogleman/gg"

	"docpipe/pkg/models"
)

// ErrNoNumericColumn means the dataset has nothing to chart. The pipeline
// records a warning and skips the chart artifacts instead of failing.
var ErrNoNumericColumn = errors.New("dataset has no numeric column to chart")

type ChartType string

const (
	ChartLine      ChartType = "line"
	ChartBar       ChartType = "bar"
	ChartHistogram ChartType = "histogram"
)

const (
	maxChartPoints = 500
	histogramBins  = 10
)

// ChartSpec is the chart-spec artifact document. The PNG render is derived
// from it, so regenerating the image never needs the dataset again.
type ChartSpec struct {
	Type      ChartType `json:"type"`
	Title     string    `json:"title"`
	XLabel    string    `json:"x_label"`
	YLabel    string    `json:"y_label"`
	Labels    []string  `json:"labels"`
	Values    []float64 `json:"values"`
	Metric    string    `json:"metric,omitempty"`
	Direction string    `json:"direction,omitempty"`
	Narrative string    `json:"narrative,omitempty"`
}

// BuildChartSpec picks the chart type from the cleaned column types:
// a datetime column makes a line chart over time, a categorical column
// makes a bar chart of per-category totals, and a lone numeric column
// falls back to a histogram of its distribution.
func BuildChartSpec(ds *models.CleanedDataset) (*ChartSpec, error) {
	yCol := ds.FirstOfType(models.ColumnNumeric)
	if yCol == nil {
		return nil, ErrNoNumericColumn
	}
	return columnSpec(ds, yCol), nil
}

// BuildTrendCharts builds one chart per analyzed trend whose metric names a
// numeric column, carrying the trend's direction and narrative into the
// spec. Trends naming unknown or non-numeric columns are skipped; callers
// fall back to BuildChartSpec when nothing matches.
func BuildTrendCharts(ds *models.CleanedDataset, summary *models.TrendSummary) []*ChartSpec {
	if summary == nil {
		return nil
	}
	var specs []*ChartSpec
	charted := make(map[string]bool)
	for _, trend := range summary.Trends {
		yCol := numericColumn(ds, trend.Metric)
		if yCol == nil || charted[yCol.Name] {
			continue
		}
		charted[yCol.Name] = true
		spec := columnSpec(ds, yCol)
		spec.Metric = trend.Metric
		spec.Direction = trend.Direction
		spec.Narrative = trend.Narrative
		specs = append(specs, spec)
	}
	return specs
}

func numericColumn(ds *models.CleanedDataset, name string) *models.Column {
	for i := range ds.Columns {
		col := &ds.Columns[i]
		if col.Type == models.ColumnNumeric && strings.EqualFold(col.Name, name) {
			return col
		}
	}
	return nil
}

func columnSpec(ds *models.CleanedDataset, yCol *models.Column) *ChartSpec {
	values := make([]float64, len(yCol.Cells))
	for i, cell := range yCol.Cells {
		values[i], _ = strconv.ParseFloat(cell, 64)
	}

	if xCol := ds.FirstOfType(models.ColumnDatetime); xCol != nil {
		labels := append([]string(nil), xCol.Cells...)
		if len(labels) > maxChartPoints {
			labels = labels[:maxChartPoints]
			values = values[:maxChartPoints]
		}
		return &ChartSpec{
			Type:   ChartLine,
			Title:  fmt.Sprintf("%s over %s", yCol.Name, xCol.Name),
			XLabel: xCol.Name,
			YLabel: yCol.Name,
			Labels: labels,
			Values: values,
		}
	}

	if xCol := ds.FirstOfType(models.ColumnCategorical); xCol != nil {
		totals := make(map[string]float64)
		var order []string
		for i, label := range xCol.Cells {
			if _, seen := totals[label]; !seen {
				order = append(order, label)
			}
			if i < len(values) {
				totals[label] += values[i]
			}
		}
		sort.Strings(order)
		spec := &ChartSpec{
			Type:   ChartBar,
			Title:  fmt.Sprintf("%s by %s", yCol.Name, xCol.Name),
			XLabel: xCol.Name,
			YLabel: yCol.Name,
		}
		for _, label := range order {
			spec.Labels = append(spec.Labels, label)
			spec.Values = append(spec.Values, totals[label])
		}
		return spec
	}

	return histogramSpec(yCol.Name, values)
}

func histogramSpec(name string, values []float64) *ChartSpec {
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	spec := &ChartSpec{
		Type:   ChartHistogram,
		Title:  fmt.Sprintf("distribution of %s", name),
		XLabel: name,
		YLabel: "count",
	}

	if min == max {
		spec.Labels = []string{formatTick(min)}
		spec.Values = []float64{float64(len(values))}
		return spec
	}

	width := (max - min) / histogramBins
	counts := make([]float64, histogramBins)
	for _, v := range values {
		bin := int((v - min) / width)
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		counts[bin]++
	}
	for i := 0; i < histogramBins; i++ {
		lo := min + float64(i)*width
		spec.Labels = append(spec.Labels, formatTick(lo))
		spec.Values = append(spec.Values, counts[i])
	}
	return spec
}

// EncodeChartSpec renders the spec as its JSON artifact document.
func EncodeChartSpec(spec *ChartSpec) ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}

const (
	chartWidth  = 900
	chartHeight = 540
	chartMargin = 60.0
)

// RenderChartPNG draws the spec as a PNG image.
func RenderChartPNG(spec *ChartSpec) ([]byte, error) {
	if len(spec.Values) == 0 {
		return nil, errors.New("chart spec has no values")
	}

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	plotW := float64(chartWidth) - 2*chartMargin
	plotH := float64(chartHeight) - 2*chartMargin

	// Axes.
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.SetLineWidth(1.5)
	dc.DrawLine(chartMargin, chartMargin, chartMargin, chartMargin+plotH)
	dc.DrawLine(chartMargin, chartMargin+plotH, chartMargin+plotW, chartMargin+plotH)
	dc.Stroke()

	dc.DrawStringAnchored(spec.Title, float64(chartWidth)/2, chartMargin/2, 0.5, 0.5)
	dc.DrawStringAnchored(spec.XLabel, float64(chartWidth)/2, float64(chartHeight)-chartMargin/4, 0.5, 0.5)

	minV, maxV := spec.Values[0], spec.Values[0]
	for _, v := range spec.Values {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	if minV > 0 {
		minV = 0
	}
	if maxV == minV {
		maxV = minV + 1
	}
	scaleY := func(v float64) float64 {
		return chartMargin + plotH - (v-minV)/(maxV-minV)*plotH
	}

	n := len(spec.Values)
	switch spec.Type {
	case ChartLine:
		dc.SetRGB(0.12, 0.35, 0.75)
		dc.SetLineWidth(2)
		step := plotW / float64(maxInt(n-1, 1))
		for i := 1; i < n; i++ {
			x0 := chartMargin + float64(i-1)*step
			x1 := chartMargin + float64(i)*step
			dc.DrawLine(x0, scaleY(spec.Values[i-1]), x1, scaleY(spec.Values[i]))
		}
		dc.Stroke()
	default: // bar and histogram
		dc.SetRGB(0.12, 0.35, 0.75)
		slot := plotW / float64(n)
		barW := slot * 0.7
		for i, v := range spec.Values {
			x := chartMargin + float64(i)*slot + (slot-barW)/2
			y := scaleY(v)
			dc.DrawRectangle(x, y, barW, chartMargin+plotH-y)
			dc.Fill()
		}
	}

	// Sparse x tick labels so long series stay readable.
	dc.SetRGB(0.3, 0.3, 0.3)
	every := maxInt(n/8, 1)
	for i := 0; i < n; i += every {
		x := chartMargin + (float64(i)+0.5)*plotW/float64(n)
		dc.DrawStringAnchored(spec.Labels[i], x, chartMargin+plotH+14, 0.5, 0.5)
	}
	dc.DrawStringAnchored(formatTick(maxV), chartMargin-8, chartMargin, 1, 0.5)
	dc.DrawStringAnchored(formatTick(minV), chartMargin-8, chartMargin+plotH, 1, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart png: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
