// Package mysql stores the session table in MySQL or MariaDB.
//
// Sessions run with sql_mode ANSI so double-quoted identifiers, the quoting
// every other backend and the query prompt use, work unchanged.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"tablesql/internal/schema"
	"tablesql/internal/storage"
)

// Dialect is the MySQL dialect.
var Dialect = storage.Dialect{
	Name: "MySQL (ANSI mode)",
	Types: map[schema.StorageType]string{
		schema.StorageInteger: "BIGINT",
		schema.StorageReal:    "DOUBLE",
		schema.StorageText:    "LONGTEXT",
	},
	Placeholder: storage.QuestionMark,
}

func init() {
	storage.Register("mysql", New)
}

// New opens a MySQL store.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn, err := ansiDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage.NewSQLStore(db, Dialect), nil
}

// ansiDSN parses dsn and forces the ANSI sql_mode and typed result columns.
func ansiDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("mysql: missing storage.dsn")
	}
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	c.Params["sql_mode"] = "'ANSI'"
	c.ParseTime = false
	return c.FormatDSN(), nil
}
