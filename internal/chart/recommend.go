// Package chart recommends a chart for a query result and prepares the
// Chart.js-shaped data for it.
//
// A recommendation comes from the chart model when it answers with usable
// axes; otherwise a deterministic heuristic picks the axes from column roles.
package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"tablesql/internal/infer"
	"tablesql/internal/metrics"
	"tablesql/internal/model"
	"tablesql/internal/schema"
	"tablesql/internal/storage"
)

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("chart: no data available for charting")

// Types lists the accepted chart types.
var Types = []string{"bar", "line", "pie", "doughnut", "radar", "polarArea"}

// Source reports where a recommendation came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Recommendation is a chart choice for one result.
type Recommendation struct {
	ChartType string `json:"chartType"`
	// XAxis names the label column.
	XAxis string `json:"xAxis"`
	// YAxis names one or more value columns, comma-separated.
	YAxis     string `json:"yAxis"`
	Title     string `json:"title"`
	Reasoning string `json:"reasoning,omitempty"`
	Insights  string `json:"insights,omitempty"`
	Source    Source `json:"source"`
}

// YColumns splits YAxis into trimmed column names.
func (r Recommendation) YColumns() []string {
	var out []string
	for _, c := range strings.Split(r.YAxis, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Validate reports every problem with r against the result columns.
func (r Recommendation) Validate(columns []string) []string {
	var errs []string
	if !slices.Contains(columns, r.XAxis) {
		errs = append(errs, fmt.Sprintf("xAxis column %q not found in data", r.XAxis))
	}
	ys := r.YColumns()
	if len(ys) == 0 {
		errs = append(errs, "yAxis is empty")
	}
	for _, y := range ys {
		if !slices.Contains(columns, y) {
			errs = append(errs, fmt.Sprintf("yAxis column %q not found in data", y))
		}
	}
	if !slices.Contains(Types, r.ChartType) {
		errs = append(errs, fmt.Sprintf("invalid chart type %q", r.ChartType))
	}
	if r.XAxis == r.YAxis {
		errs = append(errs, fmt.Sprintf("xAxis and yAxis cannot be the same column: %q", r.XAxis))
	}
	return errs
}

// ReplySchema constrains the chart model's reply.
var ReplySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"chartType": map[string]any{"type": "string"},
		"reasoning": map[string]any{"type": "string"},
		"xAxis":     map[string]any{"type": "string"},
		"yAxis":     map[string]any{"type": "string"},
		"title":     map[string]any{"type": "string"},
		"insights":  map[string]any{"type": "string"},
	},
	"required": []any{"chartType", "xAxis", "yAxis", "title"},
}

// Column is one result column as seen by the recommender.
type Column struct {
	Name        string              `json:"name"`
	DataType    schema.SemanticType `json:"dataType"`
	Description string              `json:"description"`
	Samples     []string            `json:"samples"`
	Role        Role                `json:"role"`
}

// Analyze describes each result column. Columns found in meta use their
// metadata; derived columns (aggregates, aliases) get a type inferred from
// the result values.
func Analyze(meta *schema.TableMetadata, r storage.Result) []Column {
	out := make([]Column, len(r.Columns))
	for i, name := range r.Columns {
		c, ok := meta.Column(name)
		if !ok {
			vals := stringValues(r, i)
			c = schema.ColumnMetadata{
				Name:         name,
				DataType:     infer.Infer(vals),
				SampleValues: infer.SampleUniqueValues(vals, schema.MaxSampleValues),
			}
		}
		samples := c.SampleValues
		if len(samples) > schema.MaxSampleValues {
			samples = samples[:schema.MaxSampleValues]
		}
		out[i] = Column{
			Name:        name,
			DataType:    c.DataType,
			Description: c.Description,
			Samples:     samples,
			Role:        ClassifyColumnRole(c),
		}
	}
	return out
}

// Recommender picks charts with the chart-purpose model session.
type Recommender struct {
	// Session is opened with SystemPrompt for the current metadata. Nil
	// means always use the heuristic.
	Session model.Session
	Logger  *slog.Logger
}

// Recommend returns a chart recommendation for r.
//
// Errors:
//   - ErrNoData when r has no columns or no rows.
//
// Model failures and unusable replies are not errors; they produce the
// heuristic recommendation with SourceFallback.
func (rc *Recommender) Recommend(ctx context.Context, meta *schema.TableMetadata, question string, r storage.Result) (Recommendation, error) {
	if len(r.Columns) == 0 || r.Len() == 0 {
		return Recommendation{}, ErrNoData
	}
	start := time.Now()
	cols := Analyze(meta, r)

	rec, err := rc.ask(ctx, question, cols, r)
	if err == nil {
		if errs := rec.Validate(r.Columns); len(errs) > 0 {
			err = fmt.Errorf("chart: invalid recommendation: %s", strings.Join(errs, "; "))
		}
	}
	if err != nil {
		rc.logger().Warn("chart: using heuristic recommendation", "question", question, "error", err)
		metrics.RecordStep("chart", "fallback", time.Since(start))
		return Fallback(cols, question, r.Len()), nil
	}
	metrics.RecordStep("chart", "ok", time.Since(start))
	rec.Source = SourceModel
	return rec, nil
}

func (rc *Recommender) ask(ctx context.Context, question string, cols []Column, r storage.Result) (Recommendation, error) {
	if rc.Session == nil {
		return Recommendation{}, model.ErrUnavailable
	}
	res := model.Lenient(model.Call(ctx, rc.Session, model.Request{
		Prompt: Prompt(question, cols, r),
		Schema: ReplySchema,
	}))
	var rec Recommendation
	if err := model.Decode(res, &rec, "chartType", "xAxis", "yAxis", "title"); err != nil {
		return Recommendation{}, err
	}
	return rec, nil
}

// Fallback is the heuristic recommendation:
//
//   - x is the first temporal column, else the first dimension, else the
//     first column
//   - y is up to three metric columns other than x, else the first column
//     that is not x
//   - line for a temporal x, pie for at most 8 rows of exactly 2 columns,
//     bar otherwise
func Fallback(cols []Column, question string, rows int) Recommendation {
	x := bestX(cols)
	y := bestY(cols, x)

	rec := Recommendation{
		ChartType: "bar",
		XAxis:     x,
		YAxis:     y,
		Title:     question,
		Reasoning: "Bar chart for categorical comparison",
		Insights:  "Examine the distribution and compare values across categories",
		Source:    SourceFallback,
	}
	if rec.Title == "" {
		rec.Title = "Data Visualization"
	}
	xRole := RoleUnknown
	for _, c := range cols {
		if c.Name == x {
			xRole = c.Role
			break
		}
	}
	switch {
	case xRole.Temporal():
		rec.ChartType, rec.Reasoning = "line", "Line chart to show trend over time"
	case rows <= 8 && len(cols) == 2:
		rec.ChartType, rec.Reasoning = "pie", "Pie chart to show proportional distribution with few categories"
	}
	return rec
}

func bestX(cols []Column) string {
	if len(cols) == 0 {
		return ""
	}
	for _, c := range cols {
		if c.Role.Temporal() {
			return c.Name
		}
	}
	for _, c := range cols {
		if c.Role.Dimension() {
			return c.Name
		}
	}
	return cols[0].Name
}

func bestY(cols []Column, x string) string {
	var ys []string
	for _, c := range cols {
		if c.Name != x && (c.Role.Metric() || c.DataType.Numeric()) {
			ys = append(ys, c.Name)
			if len(ys) == 3 {
				break
			}
		}
	}
	if len(ys) > 0 {
		return strings.Join(ys, ", ")
	}
	for _, c := range cols {
		if c.Name != x {
			return c.Name
		}
	}
	if len(cols) > 0 {
		return cols[0].Name
	}
	return ""
}

// SystemPrompt is the chart session's system prompt for meta.
func SystemPrompt(meta *schema.TableMetadata) string {
	var b strings.Builder
	b.WriteString("You are a data visualization expert specializing in chart recommendation and configuration. Your expertise includes:\n")
	b.WriteString("- Understanding data semantics and column relationships\n")
	b.WriteString("- Selecting optimal chart types based on data characteristics\n")
	b.WriteString("- Creating clear, informative visualizations\n\n")
	b.WriteString("You have access to detailed metadata about the data including column types, descriptions, and sample values.\n\n")
	if meta == nil {
		b.WriteString("No metadata available\n")
	} else {
		b.WriteString("Table Context:\n")
		fmt.Fprintf(&b, "- Description: %s\n", meta.Description)
		fmt.Fprintf(&b, "- Total Columns: %d\n", meta.ColumnCount)
		fmt.Fprintf(&b, "- Total Rows: %d\n", meta.RowCount)
		b.WriteString("- Column Details:\n")
		for _, c := range meta.Columns {
			fmt.Fprintf(&b, "  * %q (%s): %s\n", c.Name, c.DataType, c.Description)
		}
	}
	b.WriteString("\nYour goal is to recommend the BEST chart type and configuration that clearly communicates the data story to the user.")
	return b.String()
}

// SampleRows is the number of result rows shown in the chart prompt.
const SampleRows = 3

// Prompt builds the recommendation prompt.
func Prompt(question string, cols []Column, r storage.Result) string {
	var b strings.Builder
	b.WriteString("Analyze this query result and recommend the optimal chart type.\n\n")
	fmt.Fprintf(&b, "=== USER QUESTION ===\n%q\n\n", question)
	fmt.Fprintf(&b, "=== QUERY RESULTS SUMMARY ===\n- Total Rows: %d\n- Total Columns: %d\n\n", r.Len(), len(cols))

	b.WriteString("=== DETAILED COLUMN ANALYSIS ===\n")
	for i, c := range cols {
		desc := c.Description
		if desc == "" {
			desc = "No description available"
		}
		samples := "N/A"
		if len(c.Samples) > 0 {
			samples = strings.Join(c.Samples, ", ")
		}
		fmt.Fprintf(&b, "Column %d: %q\n", i+1, c.Name)
		fmt.Fprintf(&b, "  • Data Type: %s\n  • Semantic Role: %s\n  • Description: %s\n  • Sample Values: %s\n\n", c.DataType, c.Role, desc, samples)
	}

	sample := make([]map[string]any, 0, SampleRows)
	for i := 0; i < r.Len() && i < SampleRows; i++ {
		row := make(map[string]any, len(r.Columns))
		for j, name := range r.Columns {
			row[name] = r.Rows[i][j]
		}
		sample = append(sample, row)
	}
	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		data = []byte("[]")
	}
	fmt.Fprintf(&b, "=== SAMPLE DATA (first %d rows) ===\n%s\n\n", SampleRows, data)

	b.WriteString(`=== CHART TYPE DECISION GUIDE ===
1. BAR: compare discrete categories. X = dimension, Y = numeric metric.
2. LINE: trends over time or continuous progression. X = temporal, Y = metric.
3. PIE/DOUGHNUT: composition of a whole with 2-10 categories.
4. RADAR: compare 3-8 variables across categories.

=== IMPORTANT RULES ===
- Use column names EXACTLY as shown in the column analysis.
- xAxis is the categorical, grouping or time column.
- yAxis is the numeric column(s) that answer the question, comma-separated if several.
- The title should clearly describe what the chart shows.

=== RESPONSE FORMAT ===
Return ONLY valid JSON:
{
  "chartType": "bar|line|pie|doughnut|radar|polarArea",
  "reasoning": "why this chart type fits this data and question",
  "xAxis": "exact column name for the X-axis",
  "yAxis": "exact column name(s) for the Y-axis",
  "title": "descriptive chart title",
  "insights": "patterns the user should look for"
}
`)
	return b.String()
}

func stringValues(r storage.Result, col int) []string {
	out := make([]string, r.Len())
	for i, row := range r.Rows {
		if v := row[col]; v != nil {
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

func (rc *Recommender) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}
