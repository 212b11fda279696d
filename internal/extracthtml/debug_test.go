package extracthtml

import (
	"bytes"
	"testing"

	"tablesql/internal/table"
)

// TestPrintTables verifies one line per table, with the file prefix only
// when the table came from a directory scan.
func TestPrintTables(t *testing.T) {
	t.Parallel()

	tb := table.FromRecords([]string{"A", "B"}, [][]string{{"1", "2"}})
	var buf bytes.Buffer
	if err := PrintTables(&buf, []Found{{Index: 0, Table: tb}, {File: "x.html", Index: 2, Table: tb}}); err != nil {
		t.Fatalf("PrintTables: %v", err)
	}

	want := "[0] 1 rows x 2 columns: A | B\nx.html [2] 1 rows x 2 columns: A | B\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\nwant=%q\ngot=%q", want, buf.String())
	}
}

// TestPrintTables_Empty verifies the empty-page message.
func TestPrintTables_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := PrintTables(&buf, nil); err != nil {
		t.Fatalf("PrintTables: %v", err)
	}
	if buf.String() != "no tables found\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
