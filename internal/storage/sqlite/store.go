// Package sqlite is the default store: an embedded, in-process SQLite engine
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"tablesql/internal/schema"
	"tablesql/internal/storage"
)

// DefaultDSN is a private in-memory database.
const DefaultDSN = ":memory:"

// Dialect is the SQLite dialect. Storage types are used verbatim.
var Dialect = storage.Dialect{
	Name: "SQLite",
	Types: map[schema.StorageType]string{
		schema.StorageInteger: "INTEGER",
		schema.StorageReal:    "REAL",
		schema.StorageText:    "TEXT",
	},
	Placeholder: storage.QuestionMark,
}

func init() {
	storage.Register("sqlite", New)
}

// New opens a SQLite store. An empty DSN means DefaultDSN.
//
// In-memory databases live per connection, so the pool is pinned to a single
// connection; otherwise a table created on one connection would be missing on
// the next.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if inMemory(dsn) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{SQLStore: storage.NewSQLStore(db, Dialect), db: db}, nil
}

func inMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}
