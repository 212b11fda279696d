package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadCSV parses CSV input into a RawTable. The first record is the header row.
//
// The reader is lenient in the same way as the sampling reader it grew out of:
//   - quotes are parsed lazily
//   - ragged records are accepted (short rows are padded, long rows widen the headers)
//   - fully blank records are skipped
func ReadCSV(r io.Reader) (RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return RawTable{}, fmt.Errorf("table: read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return RawTable{}, errors.New("table: csv input is empty")
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if err != nil {
		return RawTable{}, fmt.Errorf("table: read csv header: %w", err)
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RawTable{}, fmt.Errorf("table: read csv record %d: %w", len(records)+1, err)
		}
		if blank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return FromRecords(headers, records), nil
}

// ReadXLSX reads one worksheet of an XLSX workbook. When sheet is empty the
// first sheet is used. The first non-blank row is the header row.
func ReadXLSX(r io.Reader, sheet string) (RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return RawTable{}, fmt.Errorf("table: open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return RawTable{}, errors.New("table: workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return RawTable{}, fmt.Errorf("table: read sheet %q: %w", sheet, err)
	}

	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return RawTable{}, fmt.Errorf("table: sheet %q is empty", sheet)
	}

	var records [][]string
	for _, rec := range rows[start+1:] {
		if blank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return FromRecords(rows[start], records), nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if CleanCell(v) != "" {
			return false
		}
	}
	return true
}
