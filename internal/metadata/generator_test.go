package metadata_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesql/internal/infer"
	"tablesql/internal/metadata"
	"tablesql/internal/model"
	"tablesql/internal/schema"
	"tablesql/internal/table"
)

var fixed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func prices() table.RawTable {
	return table.FromRecords([]string{"Item", "Price", "Change"}, [][]string{
		{"Apple", "$1.20", "5%"},
		{"Pear", "$0.95", "-2%"},
		{"Plum", "$2.10", "0%"},
	})
}

func session(t *testing.T, h model.Handler) (*model.Fake, model.Session) {
	t.Helper()
	f := model.NewFake(map[model.Purpose]model.Handler{model.PurposeMetadata: h})
	s, err := f.NewSession(context.Background(), model.SessionOptions{Purpose: model.PurposeMetadata, System: metadata.SystemPrompt})
	require.NoError(t, err)
	return f, s
}

func TestGenerate_UsesModelReply(t *testing.T) {
	f, s := session(t, model.Reply(map[string]any{
		"table_description": "Fruit prices",
		"column_count":      3,
		"columns": []any{
			map[string]any{"column_name": "Item", "data_type": "string", "description": "Fruit"},
			map[string]any{"column_name": "Price", "data_type": "string", "description": "Unit price"},
			map[string]any{"column_name": "Change", "data_type": "decimal", "description": "Daily change"},
		},
	}))
	g := &metadata.Generator{Session: s, Now: func() time.Time { return fixed }}

	meta, src := g.Generate(context.Background(), prices())
	assert.Equal(t, metadata.SourceModel, src)
	assert.Equal(t, "Fruit prices", meta.Description)
	assert.Equal(t, 3, meta.RowCount)
	assert.Equal(t, fixed, meta.GeneratedAt)
	assert.Equal(t, schema.Currency, meta.TypeOf("Price"))
	assert.Equal(t, schema.Percentage, meta.TypeOf("Change"))
	assert.Equal(t, "Unit price", meta.Columns[1].Description)

	reqs := f.Prompts(model.PurposeMetadata)
	require.Len(t, reqs, 1)
	assert.Equal(t, metadata.ReplySchema, reqs[0].Schema)
	require.NotNil(t, reqs[0].Temperature)
	assert.Equal(t, 0.0, *reqs[0].Temperature)
}

func TestGenerate_FallsBack(t *testing.T) {
	cases := []struct {
		name string
		h    model.Handler
	}{
		{"model error", model.Fail(errors.New("offline"))},
		{"prose", model.Reply("I cannot help with that")},
		{"missing columns", model.Reply(map[string]any{"table_description": "x", "column_count": 1})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, s := session(t, tc.h)
			g := &metadata.Generator{Session: s, Now: func() time.Time { return fixed }}

			meta, src := g.Generate(context.Background(), prices())
			assert.Equal(t, metadata.SourceFallback, src)
			assert.Equal(t, "Table with 3 columns and 3 rows", meta.Description)
			assert.Equal(t, schema.Currency, meta.TypeOf("Price"))
			assert.Equal(t, "Column 1: Item", meta.Columns[0].Description)
		})
	}
}

func TestGenerate_NilSession(t *testing.T) {
	meta, src := (&metadata.Generator{}).Generate(context.Background(), prices())
	assert.Equal(t, metadata.SourceFallback, src)
	assert.Len(t, meta.Columns, 3)
}

func TestPrompt(t *testing.T) {
	tbl := prices()
	got := metadata.Prompt(tbl, infer.Hints(tbl.Headers, tbl.Column))

	assert.Contains(t, got, "Table headers: Item, Price, Change")
	assert.Contains(t, got, "Pre-analyzed column hints (TRUST THESE):")
	assert.Contains(t, got, `"Price": suggested_type="currency", samples=[$1.20, $0.95, $2.10]`)
	assert.Contains(t, got, "Sample rows (first 10):")
	assert.Contains(t, got, `"Item": "Apple"`)
}
