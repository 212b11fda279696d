package postgres

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablesql/internal/schema"
	"tablesql/internal/storage"
)

// Dialect is the Postgres dialect.
var Dialect = storage.Dialect{
	Name: "PostgreSQL",
	Types: map[schema.StorageType]string{
		schema.StorageInteger: "BIGINT",
		schema.StorageReal:    "DOUBLE PRECISION",
		schema.StorageText:    "TEXT",
	},
	Placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
}

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

/*
Store implements storage.Store for Postgres over a pgx connection pool.

Identifiers are created quoted, so the model must quote mixed-case column
names in generated SQL; the prompt shows every name quoted.
*/
type Store struct {
	pool pool

	closeOnce sync.Once
}

// New creates a new Postgres-backed Store and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: missing storage.dsn")
	}
	p, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Dialect() string { return Dialect.Name }

func (s *Store) CreateTable(ctx context.Context, table string, columns []storage.Column) error {
	q, err := Dialect.CreateTableSQL(table, columns)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (s *Store) DropTable(ctx context.Context, table string) error {
	if _, err := s.pool.Exec(ctx, Dialect.DropTableSQL(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

func (s *Store) InsertRow(ctx context.Context, table string, columns []string, values []any) error {
	if len(values) != len(columns) {
		return fmt.Errorf("insert into %s: %d values for %d columns", table, len(values), len(columns))
	}
	q, err := Dialect.InsertSQL(table, columns)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, q, values...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// Query runs sql with the simple protocol so model-generated text is sent as
// a single statement without parameter inference.
func (s *Store) Query(ctx context.Context, sql string) (storage.Result, error) {
	rows, err := s.pool.Query(ctx, sql, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return storage.Result{}, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	out := storage.Result{Columns: make([]string, len(fds)), Rows: [][]any{}}
	for i, fd := range fds {
		out.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return storage.Result{}, err
		}
		for i := range vals {
			vals[i] = normalize(vals[i])
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return storage.Result{}, err
	}
	return out, nil
}

// normalize flattens pgx-specific value types (numeric aggregates) before the
// shared normalization.
func normalize(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		if f, err := n.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	}
	return storage.NormalizeValue(v)
}

// Close closes the connection pool once.
func (s *Store) Close() {
	s.closeOnce.Do(s.pool.Close)
}
