package extracthtml

import (
	"fmt"
	"io"
	"strings"
)

// PrintTables writes one summary line per table: position, source file when
// known, row and column counts, and the headers. This backs the "tables"
// command.
func PrintTables(w io.Writer, found []Found) error {
	if len(found) == 0 {
		_, err := fmt.Fprintln(w, "no tables found")
		return err
	}
	for _, f := range found {
		prefix := fmt.Sprintf("[%d]", f.Index)
		if f.File != "" {
			prefix = f.File + " " + prefix
		}
		if _, err := fmt.Fprintf(w, "%s %d rows x %d columns: %s\n",
			prefix, f.Table.Len(), len(f.Table.Headers), strings.Join(f.Table.Headers, " | ")); err != nil {
			return err
		}
	}
	return nil
}
