// Package schema defines the column and table metadata shared by inference,
// loading, querying and charting.
//
// The JSON field names match the metadata documents produced by earlier
// releases (table_description, column_count, ...) so exported files remain
// readable by existing consumers.
package schema

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SemanticType is the domain-level meaning of a column's values.
type SemanticType string

const (
	Integer    SemanticType = "integer"
	Decimal    SemanticType = "decimal"
	String     SemanticType = "string"
	Text       SemanticType = "text"
	Date       SemanticType = "date"
	Time       SemanticType = "time"
	Boolean    SemanticType = "boolean"
	Percentage SemanticType = "percentage"
	Currency   SemanticType = "currency"
)

// AllSemanticTypes lists every semantic type in the order used by prompts.
var AllSemanticTypes = []SemanticType{
	Integer, Decimal, String, Text, Date, Time, Boolean, Percentage, Currency,
}

// ParseSemanticType normalizes s (trim + lowercase) and reports whether it
// names a known semantic type.
func ParseSemanticType(s string) (SemanticType, bool) {
	t := SemanticType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Valid reports whether t is one of the known semantic types.
func (t SemanticType) Valid() bool {
	switch t {
	case Integer, Decimal, String, Text, Date, Time, Boolean, Percentage, Currency:
		return true
	}
	return false
}

// Numeric reports whether values of t are stored as numbers.
func (t SemanticType) Numeric() bool {
	switch t {
	case Integer, Decimal, Percentage, Currency:
		return true
	}
	return false
}

// StorageType is the physical column type used by the relational store.
type StorageType string

const (
	StorageInteger StorageType = "INTEGER"
	StorageReal    StorageType = "REAL"
	StorageText    StorageType = "TEXT"
)

func (s StorageType) String() string { return string(s) }

// StorageTypeFor maps a semantic type to its storage type.
//
// Edge cases:
//   - Booleans are stored as INTEGER 0/1.
//   - Unknown or empty types map to TEXT.
func StorageTypeFor(t SemanticType) StorageType {
	switch t {
	case Integer, Boolean:
		return StorageInteger
	case Decimal, Percentage, Currency:
		return StorageReal
	default:
		return StorageText
	}
}

const (
	// MaxTableDescription bounds TableMetadata.Description (characters).
	MaxTableDescription = 200
	// MaxColumnDescription bounds ColumnMetadata.Description (characters).
	MaxColumnDescription = 150
	// MaxSampleValues bounds ColumnMetadata.SampleValues.
	MaxSampleValues = 5
)

// ColumnMetadata is the authoritative description of one column.
type ColumnMetadata struct {
	Name         string       `json:"column_name"`
	DataType     SemanticType `json:"data_type"`
	Description  string       `json:"description"`
	SampleValues []string     `json:"sample_values"`
}

// TableMetadata is the authoritative description of a whole table.
//
// Columns are in the same order and cardinality as the table headers it
// was generated from.
type TableMetadata struct {
	Description string           `json:"table_description"`
	ColumnCount int              `json:"column_count"`
	RowCount    int              `json:"row_count"`
	GeneratedAt time.Time        `json:"generated_at"`
	Columns     []ColumnMetadata `json:"columns"`
}

// Column returns the metadata for the named column.
func (m *TableMetadata) Column(name string) (ColumnMetadata, bool) {
	if m == nil {
		return ColumnMetadata{}, false
	}
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMetadata{}, false
}

// TypeOf returns the semantic type of the named column, or String when the
// column is unknown or m is nil.
func (m *TableMetadata) TypeOf(name string) SemanticType {
	if c, ok := m.Column(name); ok && c.DataType.Valid() {
		return c.DataType
	}
	return String
}

// Truncate shortens s to at most n characters (runes), never splitting a
// UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
