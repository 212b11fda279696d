package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"tablesql/internal/schema"
	"tablesql/internal/storage"
)

// SQLSchema constrains the translation reply.
var SQLSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sql":         map[string]any{"type": "string"},
		"explanation": map[string]any{"type": "string"},
	},
	"required": []any{"sql"},
}

// AnalysisSchema constrains the analysis reply.
var AnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"directAnswer": map[string]any{"type": "string"},
		"keyInsights":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []any{"directAnswer", "keyInsights"},
}

// ColumnLine renders one column for the translation system prompt:
//
//	"Population" (SQLite: INTEGER, Type: integer): Number of people. Sample values: 1, 2, 3
//
// Without metadata for the column only the name and storage type are shown.
func ColumnLine(dialect string, c storage.Column, meta *schema.TableMetadata) string {
	name := storage.QuoteIdent(c.Name)
	mc, ok := meta.Column(c.Name)
	if !ok {
		return fmt.Sprintf("%s (%s)", name, c.Type)
	}
	samples := mc.SampleValues
	if len(samples) > 3 {
		samples = samples[:3]
	}
	return fmt.Sprintf("%s (%s: %s, Type: %s): %s. Sample values: %s",
		name, dialect, c.Type, mc.DataType, mc.Description, strings.Join(samples, ", "))
}

// SystemPrompt builds the translation session's system prompt for table.
func SystemPrompt(dialect, table string, cols []storage.Column, meta *schema.TableMetadata) string {
	lines := make([]string, len(cols))
	for i, c := range cols {
		lines[i] = ColumnLine(dialect, c, meta)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a SQL query generator. Convert natural language questions into valid %s queries.\n\n", dialect)
	fmt.Fprintf(&b, "Table: %s\n", table)

	if meta == nil {
		fmt.Fprintf(&b, "Columns: %s\n\n", strings.Join(lines, ", "))
		b.WriteString("Rules:\n")
		b.WriteString("- Return ONLY valid SQL SELECT statements\n")
		fmt.Fprintf(&b, "- Use %s syntax\n", dialect)
		b.WriteString("- Wrap column names in double quotes to handle spaces\n")
		b.WriteString(`- Return JSON: {"sql": "SELECT ...", "explanation": "brief explanation"}` + "\n")
		b.WriteString("- Never use INSERT, UPDATE, DELETE, or DROP")
		return b.String()
	}

	fmt.Fprintf(&b, "Description: %s\n\n", meta.Description)
	b.WriteString("Columns with context:\n  - ")
	b.WriteString(strings.Join(lines, "\n  - "))
	b.WriteString("\n\nStorage notes:\n")
	b.WriteString("- INTEGER columns: use standard comparison operators (>, <, =)\n")
	b.WriteString("- REAL columns hold decimals, percentages and currency amounts\n")
	b.WriteString("- TEXT columns: use LIKE for pattern matching\n")
	b.WriteString("- Boolean values are stored as INTEGER (0 = false, 1 = true)\n")
	b.WriteString("- Percentages are stored as fractions (0.75 = 75%)\n")
	b.WriteString("- Numbers with K/M/B suffixes are stored expanded\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Return ONLY valid SQL SELECT statements\n")
	fmt.Fprintf(&b, "- Use %s syntax\n", dialect)
	b.WriteString("- Wrap column names in double quotes to handle spaces\n")
	b.WriteString("- SELECT every column needed to answer the question and to chart the answer:\n")
	b.WriteString("  * for \"show X by Y\" include both X and Y\n")
	b.WriteString("  * for \"top N\" include the identifier and the metric\n")
	b.WriteString("  * for aggregations include the grouping columns and the aggregated values\n")
	b.WriteString(`- Return JSON: {"sql": "SELECT ...", "explanation": "brief explanation"}` + "\n")
	b.WriteString("- Never use INSERT, UPDATE, DELETE, or DROP\n")
	b.WriteString("- Use the column descriptions and sample values to understand what the data means\n")
	b.WriteString("- Use COUNT, SUM, AVG, MAX and MIN for aggregations, WHERE for filters, ORDER BY for sorting\n")
	b.WriteString("- Filter boolean columns with = 1 for true and = 0 for false\n")
	b.WriteString("- Give computed columns meaningful aliases with AS")
	return b.String()
}

// TranslatePrompt is the per-question prompt.
func TranslatePrompt(question string) string {
	return fmt.Sprintf("Convert this question to SQL: %q", question)
}

// SampleRows is the number of result rows shown to the analysis prompt.
const SampleRows = 10

// AnalysisPrompt builds the result-analysis prompt.
func AnalysisPrompt(question, sql string, r storage.Result, meta *schema.TableMetadata, stats map[string]ColumnStats) string {
	var b strings.Builder
	b.WriteString("You are an expert data analyst providing concise, actionable insights based on query results.\n\n")
	fmt.Fprintf(&b, "=== USER'S QUESTION ===\n%q\n\n", question)
	fmt.Fprintf(&b, "=== SQL QUERY EXECUTED ===\n%s\n\n", sql)
	fmt.Fprintf(&b, "=== QUERY RESULTS SUMMARY ===\n- Total Rows Returned: %d\n- Columns: %s\n\n", r.Len(), strings.Join(r.Columns, ", "))

	b.WriteString("=== COLUMN CONTEXT ===\n")
	for _, col := range r.Columns {
		typ, desc := "unknown", "No description"
		if mc, ok := meta.Column(col); ok {
			typ = string(mc.DataType)
			if mc.Description != "" {
				desc = mc.Description
			}
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", storage.QuoteIdent(col), typ, desc)
	}

	fmt.Fprintf(&b, "\n=== DATA (first %d rows) ===\n", SampleRows)
	b.WriteString(indentJSON(rowObjects(r, SampleRows)))
	b.WriteString("\n")

	if stats != nil {
		b.WriteString("\n=== STATISTICAL SUMMARY ===\n")
		b.WriteString(indentJSON(stats))
		b.WriteString("\n")
	}

	b.WriteString(`
=== YOUR ANALYSIS TASK ===
1. Direct Answer (2-3 sentences): answer the question clearly using exact numbers, names and values from the data.
2. Key Insights (4-6 items): the most significant findings, with specific values, rankings, comparisons, ratios, percentages, trends and outliers.

Be specific: use actual numbers and names, never "some" or "many". Explain what the data means, not just what it contains.

Return ONLY valid JSON:
{"directAnswer": "...", "keyInsights": ["...", "..."]}
`)
	return b.String()
}

func rowObjects(r storage.Result, n int) []map[string]any {
	rows := r.Rows
	if len(rows) > n {
		rows = rows[:n]
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		obj := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			if j < len(row) {
				obj[c] = row[j]
			}
		}
		out[i] = obj
	}
	return out
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
