// Package table holds the raw extracted table and the readers that produce it.
package table

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Row maps a header to the raw display string of one cell.
type Row map[string]string

// RawTable is one extracted table: ordered unique headers plus rows keyed by
// header. It is treated as immutable once built.
type RawTable struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"data"`
}

// FromRecords builds a RawTable from positional records.
//
// Normalization:
//   - headers are NFKC-normalized and trimmed
//   - cells are trimmed only, so display text reaches the store unchanged
//   - headers are extended to the widest record
//   - empty headers become "col<N>" (N is the 0-based position)
//   - repeated headers are de-duplicated by position: "name", "name_2", ...
//
// Cells missing from a short record are stored as "".
func FromRecords(headers []string, records [][]string) RawTable {
	width := len(headers)
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}

	raw := make([]string, width)
	copy(raw, headers)
	hs := normalizeHeaders(raw)

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, width)
		for i, h := range hs {
			v := ""
			if i < len(rec) {
				v = CleanCell(rec[i])
			}
			row[h] = v
		}
		rows = append(rows, row)
	}
	return RawTable{Headers: hs, Rows: rows}
}

// CleanCell applies the cell normalization used for every source.
func CleanCell(s string) string {
	return strings.TrimSpace(s)
}

func cleanHeader(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func normalizeHeaders(in []string) []string {
	out := make([]string, len(in))
	seen := make(map[string]bool, len(in))
	for i, h := range in {
		h = cleanHeader(h)
		if h == "" {
			h = "col" + strconv.Itoa(i)
		}
		if seen[h] {
			base := h
			for n := 2; ; n++ {
				cand := base + "_" + strconv.Itoa(n)
				if !seen[cand] {
					h = cand
					break
				}
			}
		}
		seen[h] = true
		out[i] = h
	}
	return out
}

// Len returns the number of data rows.
func (t RawTable) Len() int { return len(t.Rows) }

// Column returns the raw values of header h in row order. Missing cells are "".
func (t RawTable) Column(h string) []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[h]
	}
	return out
}

// Cells returns the rows as positional records in header order.
func (t RawTable) Cells() [][]string {
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rec := make([]string, len(t.Headers))
		for j, h := range t.Headers {
			rec[j] = r[h]
		}
		out[i] = rec
	}
	return out
}

// Head returns a table holding at most n rows of t.
func (t RawTable) Head(n int) RawTable {
	if n < 0 || n >= len(t.Rows) {
		return t
	}
	return RawTable{Headers: t.Headers, Rows: t.Rows[:n]}
}
