package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tablesql/internal/infer"
	"tablesql/internal/metrics"
	"tablesql/internal/model"
	"tablesql/internal/schema"
	"tablesql/internal/table"
)

// SystemPrompt is installed on the metadata model session.
const SystemPrompt = "You are a helpful assistant that generates rich metadata for HTML tables. " +
	"You excel at analyzing data patterns and inferring accurate data types."

// SampleRows is the number of rows shown to the model.
const SampleRows = 10

// ReplySchema constrains the model's metadata reply.
var ReplySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"table_description": map[string]any{"type": "string"},
		"column_count":      map[string]any{"type": "integer"},
		"columns": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"column_name":   map[string]any{"type": "string"},
					"data_type":     map[string]any{"type": "string"},
					"description":   map[string]any{"type": "string"},
					"sample_values": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []any{"column_name", "data_type"},
			},
		},
	},
	"required": []any{"table_description", "column_count", "columns"},
}

// Source reports where metadata came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
	// SourceUser marks metadata supplied or edited by the user.
	SourceUser Source = "user"
)

// Generator produces authoritative metadata for a table.
type Generator struct {
	// Session is the metadata-purpose model session. Nil means always fall
	// back to heuristics.
	Session model.Session
	Logger  *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Generate returns metadata for t. It never fails: when the model is
// unavailable or its reply is unusable, pure-heuristic metadata is returned
// with SourceFallback.
func (g *Generator) Generate(ctx context.Context, t table.RawTable) (schema.TableMetadata, Source) {
	start := time.Now()
	hints := infer.Hints(t.Headers, t.Column)
	now := g.now().UTC()

	out, err := g.ask(ctx, t, hints)
	if err != nil {
		g.logger().Warn("metadata: model unavailable, using heuristic metadata", "columns", len(t.Headers), "error", err)
		metrics.RecordStep("metadata", "fallback", time.Since(start))
		return Fallback(hints, t.Len(), now), SourceFallback
	}

	meta := Reconcile(hints, out, t.Len(), now)
	for i, c := range meta.Columns {
		if c.DataType != hints[i].Type {
			g.logger().Debug("metadata: type differs from heuristic", "column", c.Name, "heuristic", string(hints[i].Type), "type", string(c.DataType))
		}
	}
	metrics.RecordStep("metadata", "ok", time.Since(start))
	return meta, SourceModel
}

func (g *Generator) ask(ctx context.Context, t table.RawTable, hints []infer.Hint) (ModelOutput, error) {
	if g.Session == nil {
		return ModelOutput{}, model.ErrUnavailable
	}
	r := model.Call(ctx, g.Session, model.Request{
		Prompt:      Prompt(t, hints),
		Schema:      ReplySchema,
		Temperature: model.Zero(),
	})
	var out ModelOutput
	if err := model.Decode(r, &out, "table_description", "column_count", "columns"); err != nil {
		return ModelOutput{}, err
	}
	return out, nil
}

// Prompt builds the metadata prompt for t.
func Prompt(t table.RawTable, hints []infer.Hint) string {
	lines := make([]string, len(hints))
	for i, h := range hints {
		s := h.Samples
		if len(s) > 3 {
			s = s[:3]
		}
		lines[i] = fmt.Sprintf("%q: suggested_type=%q, samples=[%s]", h.Name, string(h.Type), strings.Join(s, ", "))
	}

	rows, err := json.MarshalIndent(t.Head(SampleRows).Rows, "", "  ")
	if err != nil {
		rows = []byte("[]")
	}

	types := make([]string, len(schema.AllSemanticTypes))
	for i, st := range schema.AllSemanticTypes {
		types[i] = string(st)
	}

	var b strings.Builder
	b.WriteString("You are a metadata generator for HTML tables.\n")
	b.WriteString("Your task is to produce structured JSON metadata that describes the table and each column.\n\n")
	b.WriteString("CRITICAL: The data types have been PRE-ANALYZED. Use these suggestions unless they are clearly wrong.\n\n")
	b.WriteString("Guidelines:\n")
	fmt.Fprintf(&b, "- Provide a concise table description (<=%d characters) explaining the purpose of the table.\n", schema.MaxTableDescription)
	b.WriteString("- For each column, use the SUGGESTED TYPE unless the sample data clearly contradicts it\n")
	fmt.Fprintf(&b, "- Available data types: %s\n", strings.Join(types, ", "))
	b.WriteString("- Type selection rules:\n")
	b.WriteString("  * If suggested_type is already specific (integer, decimal, percentage, etc.), USE IT\n")
	b.WriteString("  * \"integer\" for whole numbers (1, 42, 1000)\n")
	b.WriteString("  * \"decimal\" for numbers with decimal points (3.14, 99.99)\n")
	b.WriteString("  * \"boolean\" for true/false, yes/no, 0/1 values\n")
	b.WriteString("  * \"percentage\" for values like \"75%\", \"-5%\"\n")
	b.WriteString("  * \"currency\" for monetary values like \"$100\", \"€50.50\"\n")
	b.WriteString("  * \"date\" for dates (2024-01-15, 01/15/2024)\n")
	b.WriteString("  * \"time\" for times (14:30, 2:30 PM)\n")
	b.WriteString("  * \"text\" for long text content (>100 chars avg)\n")
	b.WriteString("  * \"string\" for short text that fits no other category (names, labels, codes)\n")
	fmt.Fprintf(&b, "- Describe each column's meaning in plain English (<=%d characters)\n", schema.MaxColumnDescription)
	fmt.Fprintf(&b, "- Include up to %d unique sample values\n", schema.MaxSampleValues)
	b.WriteString("- Return only valid JSON matching the schema, nothing else.\n\n")
	fmt.Fprintf(&b, "Table headers: %s\n\n", strings.Join(t.Headers, ", "))
	b.WriteString("Pre-analyzed column hints (TRUST THESE):\n  ")
	b.WriteString(strings.Join(lines, "\n  "))
	fmt.Fprintf(&b, "\n\nSample rows (first %d):\n", SampleRows)
	b.Write(rows)
	b.WriteString("\n")
	return b.String()
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
