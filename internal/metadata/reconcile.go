// Package metadata produces the authoritative TableMetadata for a table by
// merging the heuristic type verdicts with the model's advisory reply.
package metadata

import (
	"fmt"
	"strings"
	"time"

	"tablesql/internal/infer"
	"tablesql/internal/schema"
)

// ModelColumn is one column of the model's reply.
type ModelColumn struct {
	Name         string   `json:"column_name"`
	DataType     string   `json:"data_type"`
	Description  string   `json:"description"`
	SampleValues []string `json:"sample_values"`
}

// ModelOutput is the model's reply to the metadata prompt.
type ModelOutput struct {
	Description string        `json:"table_description"`
	Columns     []ModelColumn `json:"columns"`
}

// ResolveType applies the precedence policy between the heuristic verdict
// and the model's type for one column:
//
//   - model says string, heuristic found anything else: heuristic
//   - model says text, heuristic found neither string nor text: heuristic
//   - heuristic found percentage or currency and the model disagrees: heuristic
//   - otherwise: model
//
// A model type that is empty or unknown is replaced by the heuristic type.
func ResolveType(heuristic schema.SemanticType, modelType string) schema.SemanticType {
	m, ok := schema.ParseSemanticType(modelType)
	if !ok {
		return heuristic
	}
	switch {
	case m == schema.String && heuristic != schema.String:
		return heuristic
	case m == schema.Text && heuristic != schema.String && heuristic != schema.Text:
		return heuristic
	case (heuristic == schema.Percentage || heuristic == schema.Currency) && m != heuristic:
		return heuristic
	}
	return m
}

// Reconcile builds the authoritative metadata for the headers in hints.
//
// Each header is matched to the model column of the same name; when the model
// renamed or dropped it, the model column at the same position is used
// instead. Positional matching can pair the wrong columns if the model
// reordered them. Names always come from hints, so the result has exactly one
// column per header in header order.
func Reconcile(hints []infer.Hint, out ModelOutput, rowCount int, now time.Time) schema.TableMetadata {
	byName := make(map[string]int, len(out.Columns))
	for i, c := range out.Columns {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = i
		}
	}

	cols := make([]schema.ColumnMetadata, len(hints))
	for i, h := range hints {
		var mc *ModelColumn
		if j, ok := byName[h.Name]; ok {
			mc = &out.Columns[j]
		} else if i < len(out.Columns) {
			mc = &out.Columns[i]
		}

		col := schema.ColumnMetadata{
			Name:         h.Name,
			DataType:     h.Type,
			Description:  fallbackColumnDescription(i, h.Name),
			SampleValues: samples(h.Samples),
		}
		if mc != nil {
			col.DataType = ResolveType(h.Type, mc.DataType)
			if d := strings.TrimSpace(mc.Description); d != "" {
				col.Description = schema.Truncate(d, schema.MaxColumnDescription)
			}
		}
		if !col.DataType.Valid() {
			col.DataType = schema.String
		}
		cols[i] = col
	}

	desc := strings.TrimSpace(out.Description)
	if desc == "" {
		desc = fallbackTableDescription(len(hints), rowCount)
	}
	return schema.TableMetadata{
		Description: schema.Truncate(desc, schema.MaxTableDescription),
		ColumnCount: len(hints),
		RowCount:    rowCount,
		GeneratedAt: now,
		Columns:     cols,
	}
}

// Fallback builds pure-heuristic metadata. It has no external dependency and
// always succeeds.
func Fallback(hints []infer.Hint, rowCount int, now time.Time) schema.TableMetadata {
	cols := make([]schema.ColumnMetadata, len(hints))
	for i, h := range hints {
		t := h.Type
		if !t.Valid() {
			t = schema.String
		}
		cols[i] = schema.ColumnMetadata{
			Name:         h.Name,
			DataType:     t,
			Description:  fallbackColumnDescription(i, h.Name),
			SampleValues: samples(h.Samples),
		}
	}
	return schema.TableMetadata{
		Description: schema.Truncate(fallbackTableDescription(len(hints), rowCount), schema.MaxTableDescription),
		ColumnCount: len(hints),
		RowCount:    rowCount,
		GeneratedAt: now,
		Columns:     cols,
	}
}

func fallbackTableDescription(cols, rows int) string {
	return fmt.Sprintf("Table with %d columns and %d rows", cols, rows)
}

func fallbackColumnDescription(i int, name string) string {
	return schema.Truncate(fmt.Sprintf("Column %d: %s", i+1, name), schema.MaxColumnDescription)
}

// samples re-applies the sample invariants: unique, non-empty, at most
// MaxSampleValues.
func samples(in []string) []string {
	return infer.SampleUniqueValues(in, schema.MaxSampleValues)
}
