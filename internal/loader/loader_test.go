package loader_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesql/internal/loader"
	"tablesql/internal/schema"
	"tablesql/internal/storage"
	_ "tablesql/internal/storage/sqlite"
	"tablesql/internal/table"
)

func openStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.New(context.Background(), storage.Config{Kind: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func countries() table.RawTable {
	return table.FromRecords([]string{"Country", "Population"}, [][]string{
		{"China", "1,441,000,000"},
		{"India", "1,380,000,000"},
	})
}

func TestColumns(t *testing.T) {
	meta := &schema.TableMetadata{Columns: []schema.ColumnMetadata{
		{Name: "a", DataType: schema.Integer},
		{Name: "b", DataType: "PERCENTAGE"},
		{Name: "c", DataType: schema.Boolean},
		{Name: "d", DataType: "bogus"},
	}}
	got := loader.Columns([]string{"a", "b", "c", "d", "e"}, meta)
	want := []storage.Column{
		{Name: "a", Type: schema.StorageInteger},
		{Name: "b", Type: schema.StorageReal},
		{Name: "c", Type: schema.StorageInteger},
		{Name: "d", Type: schema.StorageText},
		{Name: "e", Type: schema.StorageText},
	}
	assert.Equal(t, want, got)

	for _, c := range loader.Columns([]string{"x", "y"}, nil) {
		assert.Equal(t, schema.StorageText, c.Type, "column %s", c.Name)
	}
}

func TestLoad_TypedColumns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	meta := &schema.TableMetadata{Columns: []schema.ColumnMetadata{
		{Name: "Country", DataType: schema.String},
		{Name: "Population", DataType: schema.Integer},
	}}

	l := &loader.Loader{Store: s}
	res, err := l.Load(ctx, countries(), meta)
	require.NoError(t, err)
	assert.Equal(t, loader.DefaultTable, res.TableName)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, 0, res.FailedRows)
	assert.Equal(t, 2, res.TotalRows)

	out, err := s.Query(ctx, `SELECT "Population" FROM extracted_table WHERE "Population" > 1400000000`)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, int64(1441000000), out.Rows[0][0])
}

func TestLoad_WithoutMetadataLoadsText(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	res, err := (&loader.Loader{Store: s}).Load(ctx, countries(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)

	out, err := s.Query(ctx, `SELECT "Population" FROM extracted_table ORDER BY 1`)
	require.NoError(t, err)
	assert.Equal(t, "1,380,000,000", out.Rows[0][0])
}

func TestLoad_ReplacesPreviousTable(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	l := &loader.Loader{Store: s}

	_, err := l.Load(ctx, countries(), nil)
	require.NoError(t, err)

	other := table.FromRecords([]string{"Item"}, [][]string{{"x"}})
	_, err = l.Load(ctx, other, nil)
	require.NoError(t, err)

	out, err := s.Query(ctx, `SELECT * FROM extracted_table`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Item"}, out.Columns)
	assert.Equal(t, 1, out.Len())
}

func TestLoad_UnparseableCellBecomesNull(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	recs := make([][]string, 10)
	for i := range recs {
		recs[i] = []string{fmt.Sprintf("%d", i+1)}
	}
	recs[2] = []string{"n/a"}
	tbl := table.FromRecords([]string{"n"}, recs)
	meta := &schema.TableMetadata{Columns: []schema.ColumnMetadata{{Name: "n", DataType: schema.Integer}}}

	res, err := (&loader.Loader{Store: s}).Load(ctx, tbl, meta)
	require.NoError(t, err)
	assert.Equal(t, 10, res.RowCount)

	out, err := s.Query(ctx, `SELECT COUNT(*) FROM extracted_table WHERE "n" IS NULL`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Rows[0][0])
}

// failingStore fails the insert of one row.
type failingStore struct {
	storage.Store
	failAt int
	n      int
}

func (f *failingStore) InsertRow(ctx context.Context, table string, cols []string, vals []any) error {
	f.n++
	if f.n == f.failAt {
		return errors.New("constraint failed")
	}
	return f.Store.InsertRow(ctx, table, cols, vals)
}

func TestLoad_RowFailureIsCountedNotRaised(t *testing.T) {
	ctx := context.Background()
	s := &failingStore{Store: openStore(t), failAt: 3}

	recs := make([][]string, 10)
	for i := range recs {
		recs[i] = []string{fmt.Sprintf("r%d", i)}
	}
	res, err := (&loader.Loader{Store: s, Table: "t"}).Load(ctx, table.FromRecords([]string{"v"}, recs), nil)
	require.NoError(t, err)
	assert.Equal(t, 9, res.RowCount)
	assert.Equal(t, 1, res.FailedRows)
	assert.Equal(t, "t", res.TableName)

	out, err := s.Query(ctx, `SELECT COUNT(*) FROM t`)
	require.NoError(t, err)
	assert.Equal(t, int64(9), out.Rows[0][0])
}

func TestLoad_ZeroRowsStillCreatesTable(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	res, err := (&loader.Loader{Store: s}).Load(ctx, table.FromRecords([]string{"a"}, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.RowCount)

	out, err := s.Query(ctx, `SELECT "a" FROM extracted_table`)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestLoad_Errors(t *testing.T) {
	_, err := (&loader.Loader{Store: openStore(t)}).Load(context.Background(), table.RawTable{}, nil)
	assert.ErrorIs(t, err, loader.ErrNoColumns)

	_, err = (&loader.Loader{}).Load(context.Background(), countries(), nil)
	assert.Error(t, err)
}
