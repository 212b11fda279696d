// Package export writes a RawTable and its metadata to files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"tablesql/internal/coerce"
	"tablesql/internal/schema"
	"tablesql/internal/table"
)

// Formats lists the supported export formats.
var Formats = []string{"csv", "json", "xlsx"}

const (
	DataSheet     = "Data"
	MetadataSheet = "Metadata"
)

// WriteCSV writes t as CSV: a header line, then one line per row. Every
// field is quoted with embedded quotes doubled, and lines are separated by
// "\n" with no trailing newline.
func WriteCSV(w io.Writer, t table.RawTable) error {
	lines := make([]string, 0, len(t.Rows)+1)
	lines = append(lines, csvLine(t.Headers))
	for _, rec := range t.Cells() {
		lines = append(lines, csvLine(rec))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

func csvLine(fields []string) string {
	q := make([]string, len(fields))
	for i, f := range fields {
		q[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(q, ",")
}

// WriteMetadataJSON writes meta as 2-space indented JSON.
func WriteMetadataJSON(w io.Writer, meta schema.TableMetadata) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// WriteXLSX writes t to a workbook. Sheet "Data" holds the headers and the
// rows, with cells coerced to their metadata types; a cell that does not
// parse keeps its raw text.
// When meta is non-nil a "Metadata" sheet lists every column.
func WriteXLSX(w io.Writer, t table.RawTable, meta *schema.TableMetadata) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), DataSheet); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := setRow(f, DataSheet, 1, strings2any(t.Headers)); err != nil {
		return err
	}

	types := make([]schema.SemanticType, len(t.Headers))
	for i, h := range t.Headers {
		types[i] = schema.String
		if meta != nil {
			types[i] = meta.TypeOf(h)
		}
	}
	for i, row := range t.Rows {
		vals := make([]any, len(t.Headers))
		for j, h := range t.Headers {
			v, err := coerce.Value(row[h], types[j])
			if err != nil {
				v = row[h]
			}
			vals[j] = v
		}
		if err := setRow(f, DataSheet, i+2, vals); err != nil {
			return err
		}
	}

	if meta != nil {
		if _, err := f.NewSheet(MetadataSheet); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := setRow(f, MetadataSheet, 1, []any{"Column", "Type", "Description", "Sample Values"}); err != nil {
			return err
		}
		for i, col := range meta.Columns {
			row := []any{col.Name, string(col.DataType), col.Description, strings.Join(col.SampleValues, ", ")}
			if err := setRow(f, MetadataSheet, i+2, row); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("export: %s row %d: %w", sheet, row, err)
	}
	return nil
}

func strings2any(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
