package storage

import (
	"fmt"
	"strings"

	"tablesql/internal/schema"
)

// Column is one storage column of a table to create.
type Column struct {
	Name string             `json:"name"`
	Type schema.StorageType `json:"type"`
}

// Dialect captures the per-engine SQL differences the stores care about.
type Dialect struct {
	// Name is shown to the model, e.g. "SQLite" or "PostgreSQL".
	Name string
	// Types maps the abstract storage type to the engine's column type.
	Types map[schema.StorageType]string
	// Placeholder renders the i-th (1-based) bind parameter.
	Placeholder func(i int) string
}

// QuestionMark is the "?" placeholder style.
func QuestionMark(int) string { return "?" }

// QuoteIdent wraps id in double quotes, doubling any embedded quote.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// ColumnType returns the engine type for t. Unknown types map to the TEXT type.
func (d Dialect) ColumnType(t schema.StorageType) string {
	if s, ok := d.Types[t]; ok {
		return s
	}
	if s, ok := d.Types[schema.StorageText]; ok {
		return s
	}
	return string(schema.StorageText)
}

// CreateTableSQL renders CREATE TABLE for table and columns.
//
// Errors:
//   - Returns an error when table is empty or columns is empty; a table with
//     zero columns is a caller bug.
func (d Dialect) CreateTableSQL(table string, columns []Column) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("storage: create table: empty table name")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("storage: create table %s: no columns", table)
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(QuoteIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(d.ColumnType(c.Type))
	}
	b.WriteString(")")
	return b.String(), nil
}

// DropTableSQL renders DROP TABLE IF EXISTS for table.
func (d Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + QuoteIdent(table)
}

// InsertSQL renders a single-row INSERT with one placeholder per column.
func (d Dialect) InsertSQL(table string, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("storage: insert into %s: no columns", table)
	}
	ph := d.Placeholder
	if ph == nil {
		ph = QuestionMark
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ph(i + 1))
	}
	b.WriteString(")")
	return b.String(), nil
}
