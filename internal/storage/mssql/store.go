package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/microsoft/go-mssqldb"

	"tablesql/internal/schema"
	"tablesql/internal/storage"
)

// Dialect is the SQL Server dialect. Quoted identifiers rely on
// QUOTED_IDENTIFIER ON, the driver default.
var Dialect = storage.Dialect{
	Name: "SQL Server",
	Types: map[schema.StorageType]string{
		schema.StorageInteger: "BIGINT",
		schema.StorageReal:    "FLOAT",
		schema.StorageText:    "NVARCHAR(MAX)",
	},
	Placeholder: func(i int) string { return "@p" + strconv.Itoa(i) },
}

func init() {
	storage.Register("mssql", New)
}

// New opens a store using database/sql and the "sqlserver" driver registered
// by github.com/microsoft/go-mssqldb.
//
// This method validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mssql: missing storage.dsn")
	}
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// One session table; a small pool is plenty.
	raw.SetMaxOpenConns(4)
	raw.SetMaxIdleConns(4)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return storage.NewSQLStore(raw, Dialect), nil
}
