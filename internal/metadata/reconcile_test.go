package metadata

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesql/internal/infer"
	"tablesql/internal/schema"
)

func TestResolveType(t *testing.T) {
	t.Parallel()
	cases := []struct {
		heuristic schema.SemanticType
		model     string
		want      schema.SemanticType
	}{
		{schema.Currency, "string", schema.Currency},
		{schema.Integer, "string", schema.Integer},
		{schema.String, "string", schema.String},
		{schema.Integer, "text", schema.Integer},
		{schema.String, "text", schema.Text},
		{schema.Percentage, "decimal", schema.Percentage},
		{schema.Currency, "integer", schema.Currency},
		{schema.Integer, "decimal", schema.Decimal},
		{schema.String, "date", schema.Date},
		{schema.Integer, "", schema.Integer},
		{schema.Integer, "number", schema.Integer},
		{schema.Date, "DATE", schema.Date},
	}
	for _, tc := range cases {
		if got := ResolveType(tc.heuristic, tc.model); got != tc.want {
			t.Fatalf("ResolveType(%s, %q)=%s, want %s", tc.heuristic, tc.model, got, tc.want)
		}
	}
}

func hintsFor(headers []string, types ...schema.SemanticType) []infer.Hint {
	out := make([]infer.Hint, len(headers))
	for i, h := range headers {
		out[i] = infer.Hint{Name: h, Type: types[i], Samples: []string{"a", "a", "", "b"}}
	}
	return out
}

func TestReconcile_MatchesByNameThenPosition(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	hints := hintsFor([]string{"Price", "City", "Notes"}, schema.Currency, schema.String, schema.String)
	out := ModelOutput{
		Description: "Shop prices",
		Columns: []ModelColumn{
			{Name: "City", DataType: "string", Description: "Where"},
			{Name: "Price", DataType: "string", Description: "Cost"},
			{Name: "Remarks", DataType: "text", Description: "Free text"},
		},
	}

	got := Reconcile(hints, out, 7, now)
	require.Len(t, got.Columns, 3)
	assert.Equal(t, "Shop prices", got.Description)
	assert.Equal(t, 3, got.ColumnCount)
	assert.Equal(t, 7, got.RowCount)
	assert.Equal(t, now, got.GeneratedAt)

	assert.Equal(t, "Price", got.Columns[0].Name)
	assert.Equal(t, schema.Currency, got.Columns[0].DataType)
	assert.Equal(t, "Cost", got.Columns[0].Description)

	assert.Equal(t, "Where", got.Columns[1].Description)

	// "Notes" is not in the reply by name; the third model column is used.
	assert.Equal(t, "Notes", got.Columns[2].Name)
	assert.Equal(t, schema.Text, got.Columns[2].DataType)
	assert.Equal(t, "Free text", got.Columns[2].Description)

	for _, c := range got.Columns {
		assert.Equal(t, []string{"a", "b"}, c.SampleValues)
	}
}

func TestReconcile_MissingModelColumnsAndTruncation(t *testing.T) {
	t.Parallel()
	hints := hintsFor([]string{"a", "b"}, schema.Integer, schema.Date)
	out := ModelOutput{
		Description: strings.Repeat("x", 300),
		Columns:     []ModelColumn{{Name: "a", DataType: "integer", Description: strings.Repeat("y", 200)}},
	}

	got := Reconcile(hints, out, 0, time.Time{})
	assert.Len(t, []rune(got.Description), schema.MaxTableDescription)
	assert.Len(t, []rune(got.Columns[0].Description), schema.MaxColumnDescription)
	assert.Equal(t, schema.Date, got.Columns[1].DataType)
	assert.Equal(t, "Column 2: b", got.Columns[1].Description)
}

func TestReconcile_EmptyDescriptionFallsBack(t *testing.T) {
	t.Parallel()
	got := Reconcile(hintsFor([]string{"a"}, schema.String), ModelOutput{Description: "  "}, 4, time.Time{})
	assert.Equal(t, "Table with 1 columns and 4 rows", got.Description)
}

func TestFallback(t *testing.T) {
	t.Parallel()
	hints := hintsFor([]string{"Country", "Population"}, schema.String, "")
	got := Fallback(hints, 2, time.Time{})

	assert.Equal(t, "Table with 2 columns and 2 rows", got.Description)
	assert.Equal(t, 2, got.ColumnCount)
	assert.Equal(t, "Column 1: Country", got.Columns[0].Description)
	assert.Equal(t, schema.String, got.Columns[1].DataType, "invalid heuristic type becomes string")
}
