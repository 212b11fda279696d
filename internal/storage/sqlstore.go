package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// DB is the subset of *sql.DB the shared store uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// SQLStore implements Store on database/sql for every backend whose driver
// speaks it (sqlite, mssql, mysql). Engine differences live in the Dialect.
type SQLStore struct {
	db      DB
	dialect Dialect

	closeOnce sync.Once
}

// NewSQLStore wraps db. The store owns db and closes it on Close.
func NewSQLStore(db DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func (s *SQLStore) Dialect() string { return s.dialect.Name }

func (s *SQLStore) CreateTable(ctx context.Context, table string, columns []Column) error {
	q, err := s.dialect.CreateTableSQL(table, columns)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (s *SQLStore) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.DropTableSQL(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

func (s *SQLStore) InsertRow(ctx context.Context, table string, columns []string, values []any) error {
	if len(values) != len(columns) {
		return fmt.Errorf("insert into %s: %d values for %d columns", table, len(values), len(columns))
	}
	q, err := s.dialect.InsertSQL(table, columns)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, values...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, q string) (Result, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

// Close closes the underlying database once.
func (s *SQLStore) Close() {
	s.closeOnce.Do(func() { _ = s.db.Close() })
}

// ScanRows drains rows into a Result with normalized values.
func ScanRows(rows *sql.Rows) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	out := Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		for i := range vals {
			vals[i] = NormalizeValue(vals[i])
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return out, nil
}
