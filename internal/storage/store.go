// Package storage defines the relational store the session loads one
// extracted table into, and the kind-keyed registry backends register with.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Store.
//
// When to use:
//   - Use Config when constructing a Store via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind string
	DSN  string
}

// Result is the outcome of one executed query. Rows are parallel to Columns
// and hold storage-typed values (int64, float64, string, nil, ...).
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (r Result) Len() int { return len(r.Rows) }

// ColumnIndex returns the position of name in Columns, or -1.
func (r Result) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Values returns the values of column i in row order.
func (r Result) Values(i int) []any {
	out := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		if i < len(row) {
			out = append(out, row[i])
		} else {
			out = append(out, nil)
		}
	}
	return out
}

// Store is a backend-agnostic handle to the relational engine.
//
// IMPORTANT: This interface is intentionally minimal. The session holds at
// most one live table, created from authoritative metadata and destroyed
// before the next one is created; there is no migration.
type Store interface {
	// Dialect names the engine (e.g. "SQLite"). It is shown to the model so
	// generated SQL matches the engine.
	Dialect() string

	// CreateTable creates table with one column per entry, in order.
	// Identifiers are quote-escaped.
	CreateTable(ctx context.Context, table string, columns []Column) error

	// DropTable drops table if it exists.
	DropTable(ctx context.Context, table string) error

	// InsertRow inserts one row. values are parallel to columns; nil is NULL.
	InsertRow(ctx context.Context, table string, columns []string, values []any) error

	// Query runs sql and returns every row. A statement that yields no rows
	// returns an empty Result, not an error.
	Query(ctx context.Context, sql string) (Result, error)

	// Close releases any backend resources (connections, pools, etc).
	//
	// Edge cases:
	//   - Implementations must be safe to call more than once.
	Close()
}

// ---- factories ----

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New opens a Store using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
