package chart

import (
	"fmt"
	"slices"
	"strings"

	"tablesql/internal/coerce"
	"tablesql/internal/storage"
)

// Palette is the base dataset colour list.
var Palette = []string{
	"rgba(54, 162, 235, 0.8)",
	"rgba(255, 99, 132, 0.8)",
	"rgba(75, 192, 192, 0.8)",
	"rgba(255, 206, 86, 0.8)",
	"rgba(153, 102, 255, 0.8)",
	"rgba(255, 159, 64, 0.8)",
	"rgba(199, 199, 199, 0.8)",
	"rgba(83, 102, 255, 0.8)",
	"rgba(255, 99, 255, 0.8)",
	"rgba(99, 255, 132, 0.8)",
}

// Colors returns n palette colours starting at offset seed, wrapping.
func Colors(n, seed int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Palette[(i+seed)%len(Palette)]
	}
	return out
}

// Dataset is one series. BackgroundColor is a single colour, or one colour
// per point for the proportional chart types.
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor any       `json:"backgroundColor"`
	BorderColor     string    `json:"borderColor,omitempty"`
	BorderWidth     int       `json:"borderWidth,omitempty"`
	Fill            *bool     `json:"fill,omitempty"`
}

// Data is the labels and datasets of one chart.
type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// proportional chart types colour each point.
func proportional(t string) bool {
	return t == "pie" || t == "doughnut" || t == "polarArea"
}

// PrepareData builds the chart data for rec from r.
//
// Edge cases:
//   - Values that are not numeric chart as 0.
//   - Proportional types (pie, doughnut, polarArea) use only the first y
//     column and colour every point.
//   - Y columns missing from r are skipped.
//
// Errors:
//   - ErrNoData when r has no rows.
//   - The x column, or every y column, is missing from r.
func PrepareData(rec Recommendation, r storage.Result) (Data, error) {
	if r.Len() == 0 {
		return Data{}, ErrNoData
	}
	xi := r.ColumnIndex(rec.XAxis)
	if xi < 0 {
		return Data{}, fmt.Errorf("chart: x-axis column %q not found in data; available columns: %s", rec.XAxis, strings.Join(r.Columns, ", "))
	}

	labels := make([]string, r.Len())
	for i, row := range r.Rows {
		labels[i] = label(row[xi])
	}
	out := Data{Labels: labels}

	ys := rec.YColumns()
	if proportional(rec.ChartType) {
		ys = ys[:min(len(ys), 1)]
	}
	for n, y := range ys {
		yi := r.ColumnIndex(y)
		if yi < 0 {
			continue
		}
		ds := Dataset{Label: y, Data: values(r, yi)}
		if proportional(rec.ChartType) {
			ds.BackgroundColor = Colors(r.Len(), 0)
		} else {
			c := Colors(1, n)[0]
			fill := rec.ChartType != "line"
			ds.BackgroundColor, ds.BorderColor, ds.BorderWidth, ds.Fill = c, c, 2, &fill
		}
		out.Datasets = append(out.Datasets, ds)
	}
	if len(out.Datasets) == 0 {
		return Data{}, fmt.Errorf("chart: no valid y-axis columns found; tried: %s", strings.Join(ys, ", "))
	}
	return out, nil
}

func values(r storage.Result, col int) []float64 {
	out := make([]float64, r.Len())
	for i, row := range r.Rows {
		out[i] = number(row[col])
	}
	return out
}

func number(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case bool:
		if n {
			return 1
		}
	case string:
		if f, ok := coerce.Float(n); ok {
			return f
		}
	}
	return 0
}

func label(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Config is a complete Chart.js configuration.
type Config struct {
	Type    string         `json:"type"`
	Data    Data           `json:"data"`
	Options map[string]any `json:"options"`
}

// Build prepares the data for rec and wraps it with display options. Axis
// scales are omitted for pie and doughnut charts.
func Build(rec Recommendation, r storage.Result) (Config, error) {
	data, err := PrepareData(rec, r)
	if err != nil {
		return Config{}, err
	}
	plugins := map[string]any{
		"legend": map[string]any{"display": true, "position": "top"},
		"title": map[string]any{
			"display": rec.Title != "",
			"text":    rec.Title,
		},
	}
	if rec.Insights != "" {
		plugins["subtitle"] = map[string]any{"display": true, "text": rec.Insights}
	}
	opts := map[string]any{
		"responsive":          true,
		"maintainAspectRatio": false,
		"plugins":             plugins,
	}
	if !slices.Contains([]string{"pie", "doughnut"}, rec.ChartType) {
		opts["scales"] = map[string]any{
			"y": map[string]any{"beginAtZero": true},
			"x": map[string]any{"ticks": map[string]any{"maxRotation": 45, "minRotation": 0, "autoSkip": false}},
		}
	}
	return Config{Type: rec.ChartType, Data: data, Options: opts}, nil
}
