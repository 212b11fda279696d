package export_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tablesql/internal/export"
	"tablesql/internal/schema"
	"tablesql/internal/table"
)

func sample() table.RawTable {
	return table.FromRecords([]string{"Name", "Score"}, [][]string{
		{`Ann "the" Great`, "1,200"},
		{"Bob", "n/a"},
		{"Cy"},
	})
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, sample()))
	want := `"Name","Score"` + "\n" +
		`"Ann ""the"" Great","1,200"` + "\n" +
		`"Bob","n/a"` + "\n" +
		`"Cy",""`
	if got := buf.String(); got != want {
		t.Fatalf("WriteCSV()=%q, want %q", got, want)
	}
}

func TestWriteMetadataJSON(t *testing.T) {
	t.Parallel()
	meta := schema.TableMetadata{
		Description: "Scores",
		ColumnCount: 1,
		RowCount:    3,
		GeneratedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Columns:     []schema.ColumnMetadata{{Name: "Score", DataType: schema.Integer, SampleValues: []string{"1,200"}}},
	}
	var buf bytes.Buffer
	require.NoError(t, export.WriteMetadataJSON(&buf, meta))
	assert.Contains(t, buf.String(), "\n  \"table_description\": \"Scores\"")

	var back map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "2024-01-02T03:04:05Z", back["generated_at"])
	assert.Equal(t, float64(1), back["column_count"])
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()
	meta := &schema.TableMetadata{Columns: []schema.ColumnMetadata{
		{Name: "Name", DataType: schema.String, Description: "Player"},
		{Name: "Score", DataType: schema.Integer, SampleValues: []string{"1,200", "n/a"}},
	}}
	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, sample(), meta))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{export.DataSheet, export.MetadataSheet}, f.GetSheetList())

	rows, err := f.GetRows(export.DataSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Name", "Score"}, rows[0])
	assert.Equal(t, "1200", rows[1][1])
	assert.Equal(t, "n/a", rows[2][1], "unparseable cells keep their text")

	md, err := f.GetRows(export.MetadataSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Score", "integer", "", "1,200, n/a"}, md[2])
}

func TestWriteXLSX_WithoutMetadata(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, sample(), nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{export.DataSheet}, f.GetSheetList())
	v, err := f.GetCellValue(export.DataSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "1,200", v)
}
