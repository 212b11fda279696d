package extracthtml

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tablesql/internal/table"
)

// Found is one table discovered in a file.
type Found struct {
	File  string         `json:"file"`
	Index int            `json:"index"`
	Table table.RawTable `json:"-"`
}

// ScanDir extracts the tables of every .html/.htm file in dir.
//
// Behavior:
//   - stable ordering by filename, then by table position in the file
//   - unreadable or unparseable files are skipped
//   - subdirectories are not descended into
func ScanDir(dir string) ([]Found, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var out []Found
	for _, e := range entries {
		if e.IsDir() || !IsHTMLFile(e.Name()) {
			continue
		}

		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		tables, err := ExtractTables(string(b))
		if err != nil {
			continue
		}
		for i, t := range tables {
			out = append(out, Found{File: e.Name(), Index: i, Table: t})
		}
	}
	return out, nil
}

// IsHTMLFile reports whether name has an HTML extension.
func IsHTMLFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}
