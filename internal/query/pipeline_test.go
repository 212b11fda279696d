package query_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tablesql/internal/infer"
	"tablesql/internal/loader"
	"tablesql/internal/model"
	"tablesql/internal/model/mocks"
	"tablesql/internal/query"
	"tablesql/internal/schema"
	"tablesql/internal/storage"
	_ "tablesql/internal/storage/sqlite"
	"tablesql/internal/table"
)

// loadCountries loads the two-row Country/Population table with heuristic
// types and returns the store and metadata.
func loadCountries(t *testing.T) (storage.Store, *schema.TableMetadata) {
	t.Helper()
	ctx := context.Background()

	tbl := table.FromRecords([]string{"Country", "Population"}, [][]string{
		{"China", "1,441,000,000"},
		{"India", "1,380,000,000"},
	})
	meta := &schema.TableMetadata{ColumnCount: 2, RowCount: 2}
	for _, h := range infer.Hints(tbl.Headers, tbl.Column) {
		meta.Columns = append(meta.Columns, schema.ColumnMetadata{Name: h.Name, DataType: h.Type, SampleValues: h.Samples})
	}

	s, err := storage.New(ctx, storage.Config{Kind: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	_, err = (&loader.Loader{Store: s}).Load(ctx, tbl, meta)
	require.NoError(t, err)
	return s, meta
}

func TestPipeline_EndToEnd(t *testing.T) {
	s, meta := loadCountries(t)
	require.Equal(t, schema.Integer, meta.TypeOf("Population"))

	ctrl := gomock.NewController(t)
	sess := mocks.NewMockSession(ctrl)
	gomock.InOrder(
		sess.EXPECT().Prompt(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req model.Request) (any, error) {
			assert.Equal(t, `Convert this question to SQL: "show all rows"`, req.Prompt)
			assert.Equal(t, query.SQLSchema, req.Schema)
			return `{"sql":"SELECT \"Country\", \"Population\" FROM extracted_table","explanation":"all rows"}`, nil
		}),
		sess.EXPECT().Prompt(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req model.Request) (any, error) {
			assert.Contains(t, req.Prompt, "STATISTICAL SUMMARY")
			assert.Contains(t, req.Prompt, `"China"`)
			return map[string]any{"directAnswer": "China leads.", "keyInsights": []any{"China > India"}}, nil
		}),
	)

	p := &query.Pipeline{Session: sess, Store: s, Meta: meta}
	out, err := p.Run(context.Background(), "show all rows")
	require.NoError(t, err)

	assert.Equal(t, `SELECT "Country", "Population" FROM extracted_table`, out.SQL)
	assert.Equal(t, "all rows", out.Explanation)
	assert.Equal(t, []string{"Country", "Population"}, out.Results.Columns)
	require.Equal(t, 2, out.Results.Len())
	assert.Equal(t, int64(1441000000), out.Results.Rows[0][1])
	require.NotNil(t, out.Analysis)
	assert.Equal(t, "China leads.", out.Analysis.DirectAnswer)
	assert.Nil(t, out.Fallback)
	assert.Equal(t, query.Done, out.State)
	assert.False(t, p.Busy())
}

func TestPipeline_UnsafeSQLIsNeverExecuted(t *testing.T) {
	s, meta := loadCountries(t)
	f := model.NewFake(map[model.Purpose]model.Handler{
		model.PurposeSQL: model.Reply(map[string]any{"sql": "SELECT * FROM extracted_table; DROP TABLE extracted_table"}),
	})
	sess, err := f.NewSession(context.Background(), model.SessionOptions{Purpose: model.PurposeSQL})
	require.NoError(t, err)

	p := &query.Pipeline{Session: sess, Store: s, Meta: meta}
	out, err := p.Run(context.Background(), "drop it")
	require.ErrorIs(t, err, query.ErrUnsafeQuery)
	assert.Equal(t, query.Failed, out.State)
	assert.Contains(t, out.SQL, "DROP")
	assert.Len(t, f.Prompts(model.PurposeSQL), 1, "analysis must not run")

	res, err := s.Query(context.Background(), `SELECT COUNT(*) FROM extracted_table`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows[0][0])
}

func TestPipeline_TranslationFailures(t *testing.T) {
	s, meta := loadCountries(t)
	cases := []struct {
		name  string
		reply model.Handler
	}{
		{"model error", model.Fail(errors.New("backend down"))},
		{"prose reply", model.Reply("I think you want SELECT *")},
		{"missing sql", model.Reply(map[string]any{"explanation": "x"})},
		{"blank sql", model.Reply(map[string]any{"sql": "   "})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := model.NewFake(map[model.Purpose]model.Handler{model.PurposeSQL: tc.reply})
			sess, _ := f.NewSession(context.Background(), model.SessionOptions{Purpose: model.PurposeSQL})
			p := &query.Pipeline{Session: sess, Store: s, Meta: meta}

			out, err := p.Run(context.Background(), "q")
			require.ErrorIs(t, err, query.ErrTranslate)
			assert.Equal(t, query.Failed, out.State)
			assert.False(t, p.Busy(), "failure must leave the pipeline re-triable")
		})
	}
}

func TestPipeline_StoreErrorIsTerminal(t *testing.T) {
	s, meta := loadCountries(t)
	f := model.NewFake(map[model.Purpose]model.Handler{
		model.PurposeSQL: model.Reply(map[string]any{"sql": `SELECT "Capital" FROM extracted_table`}),
	})
	sess, _ := f.NewSession(context.Background(), model.SessionOptions{Purpose: model.PurposeSQL})
	p := &query.Pipeline{Session: sess, Store: s, Meta: meta}

	_, err := p.Run(context.Background(), "capital?")
	require.ErrorIs(t, err, query.ErrExecute)

	// The store stays usable and the pipeline accepts the next query.
	f.Handlers[model.PurposeSQL] = model.Reply(map[string]any{"sql": `SELECT "Country" FROM extracted_table`})
	out, err := p.Run(context.Background(), "countries")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Results.Len())
}

func TestPipeline_AnalysisFailureFallsBack(t *testing.T) {
	s, meta := loadCountries(t)
	calls := 0
	f := model.NewFake(map[model.Purpose]model.Handler{
		model.PurposeSQL: func(ctx context.Context, req model.Request) (any, error) {
			calls++
			if calls == 1 {
				return map[string]any{"sql": `SELECT "Country" FROM extracted_table WHERE "Population" > 0`}, nil
			}
			return map[string]any{"directAnswer": "missing insights"}, nil
		},
	})
	sess, _ := f.NewSession(context.Background(), model.SessionOptions{Purpose: model.PurposeSQL})
	p := &query.Pipeline{Session: sess, Store: s, Meta: meta}

	out, err := p.Run(context.Background(), "which countries")
	require.NoError(t, err)
	assert.Nil(t, out.Analysis)
	require.NotNil(t, out.Fallback)
	assert.Equal(t, "Found 2 result(s) matching your query.", out.Fallback.DirectAnswer)
	assert.Equal(t, []string{"Query returned 2 row(s)", "Columns included: Country"}, out.Fallback.KeyInsights)
	assert.Equal(t, query.Done, out.State)
}

func TestPipeline_ZeroRowsIsValid(t *testing.T) {
	s, meta := loadCountries(t)
	f := model.NewFake(map[model.Purpose]model.Handler{
		model.PurposeSQL: model.Reply(map[string]any{"sql": `SELECT "Country" FROM extracted_table WHERE "Population" < 0`}),
	})
	sess, _ := f.NewSession(context.Background(), model.SessionOptions{Purpose: model.PurposeSQL})

	out, err := (&query.Pipeline{Session: sess, Store: s, Meta: meta}).Run(context.Background(), "none")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Results.Len())
	assert.NotNil(t, out.Fallback)
}

func TestPipeline_RejectsConcurrentRun(t *testing.T) {
	s, meta := loadCountries(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f := model.NewFake(map[model.Purpose]model.Handler{
		model.PurposeSQL: func(ctx context.Context, req model.Request) (any, error) {
			if strings.HasPrefix(req.Prompt, "Convert") {
				close(entered)
				<-release
			}
			return map[string]any{"sql": `SELECT 1`}, nil
		},
	})
	sess, _ := f.NewSession(context.Background(), model.SessionOptions{Purpose: model.PurposeSQL})
	p := &query.Pipeline{Session: sess, Store: s, Meta: meta}

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), "first")
		done <- err
	}()
	<-entered
	assert.True(t, p.Busy())

	_, err := p.Run(context.Background(), "second")
	require.ErrorIs(t, err, query.ErrIllegalTransition)

	close(release)
	require.NoError(t, <-done)
}

func TestSystemPrompt(t *testing.T) {
	meta := &schema.TableMetadata{
		Description: "Countries by population",
		Columns: []schema.ColumnMetadata{
			{Name: "Country", DataType: schema.String, Description: "Country name", SampleValues: []string{"China", "India", "USA", "Brazil"}},
			{Name: "Population", DataType: schema.Integer, Description: "People", SampleValues: []string{"1"}},
		},
	}
	cols := loader.Columns([]string{"Country", "Population", "Extra"}, meta)

	got := query.SystemPrompt("SQLite", "extracted_table", cols, meta)
	assert.Contains(t, got, "Table: extracted_table")
	assert.Contains(t, got, "Description: Countries by population")
	assert.Contains(t, got, `"Country" (SQLite: TEXT, Type: string): Country name. Sample values: China, India, USA`)
	assert.NotContains(t, got, "Brazil")
	assert.Contains(t, got, `"Population" (SQLite: INTEGER, Type: integer): People. Sample values: 1`)
	assert.Contains(t, got, `"Extra" (TEXT)`)

	basic := query.SystemPrompt("SQLite", "extracted_table", loader.Columns([]string{"Country", "Population", "Extra"}, nil), nil)
	assert.Contains(t, basic, `Columns: "Country" (TEXT), "Population" (TEXT), "Extra" (TEXT)`)
}
