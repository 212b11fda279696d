// Package loader maps authoritative metadata onto a store table and loads
// coerced rows into it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tablesql/internal/coerce"
	"tablesql/internal/metrics"
	"tablesql/internal/schema"
	"tablesql/internal/storage"
	"tablesql/internal/table"
)

// DefaultTable is the name of the single live table.
const DefaultTable = "extracted_table"

// ErrNoColumns is returned when the table to load has no headers.
var ErrNoColumns = errors.New("loader: table has no columns")

// Result summarizes one load.
type Result struct {
	TableName string `json:"tableName"`
	// RowCount is the number of rows actually inserted.
	RowCount   int              `json:"rowCount"`
	FailedRows int              `json:"failedRows"`
	TotalRows  int              `json:"totalRows"`
	Columns    []storage.Column `json:"columns"`
}

// Loader owns the load of one RawTable into a Store.
type Loader struct {
	Store storage.Store
	// Table defaults to DefaultTable.
	Table  string
	Logger *slog.Logger
}

// Columns resolves the storage column for each header, in header order.
// Headers missing from meta (or a nil meta) are TEXT.
func Columns(headers []string, meta *schema.TableMetadata) []storage.Column {
	out := make([]storage.Column, len(headers))
	for i, h := range headers {
		out[i] = storage.Column{Name: h, Type: schema.StorageTypeFor(resolvedType(meta, h))}
	}
	return out
}

// resolvedType is the semantic type used for coercion: the metadata type, or
// string when the column has no metadata.
func resolvedType(meta *schema.TableMetadata, h string) schema.SemanticType {
	if meta == nil {
		return schema.String
	}
	c, ok := meta.Column(h)
	if !ok {
		return schema.String
	}
	if t, ok := schema.ParseSemanticType(string(c.DataType)); ok {
		return t
	}
	return schema.String
}

// Load drops any previous table, creates a fresh one from meta and inserts
// every row of t.
//
// Edge cases:
//   - A nil meta loads every column as TEXT.
//   - Unparseable cells are stored as NULL and logged.
//   - A failing row insert is logged, counted in FailedRows and skipped.
//
// Errors:
//   - ErrNoColumns when t has no headers.
//   - Drop or create failures; the load stops before inserting anything.
func (l *Loader) Load(ctx context.Context, t table.RawTable, meta *schema.TableMetadata) (Result, error) {
	start := time.Now()
	res, err := l.load(ctx, t, meta)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep("load", status, time.Since(start))
	return res, err
}

func (l *Loader) load(ctx context.Context, t table.RawTable, meta *schema.TableMetadata) (Result, error) {
	if len(t.Headers) == 0 {
		return Result{}, ErrNoColumns
	}
	if l.Store == nil {
		return Result{}, errors.New("loader: nil store")
	}
	name := l.tableName()
	log := l.logger()

	if err := l.Store.DropTable(ctx, name); err != nil {
		return Result{}, fmt.Errorf("loader: %w", err)
	}
	cols := Columns(t.Headers, meta)
	if err := l.Store.CreateTable(ctx, name, cols); err != nil {
		return Result{}, fmt.Errorf("loader: %w", err)
	}

	types := make([]schema.SemanticType, len(t.Headers))
	for i, h := range t.Headers {
		types[i] = resolvedType(meta, h)
	}
	c := coerce.Coercer{Logger: log}

	res := Result{TableName: name, TotalRows: len(t.Rows), Columns: cols}
	for i, row := range t.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		vals := make([]any, len(t.Headers))
		for j, h := range t.Headers {
			vals[j] = c.Coerce(row[h], types[j])
		}
		if err := l.Store.InsertRow(ctx, name, t.Headers, vals); err != nil {
			log.Warn("loader: row insert failed", "table", name, "row", i, "error", err)
			res.FailedRows++
			continue
		}
		res.RowCount++
	}

	metrics.RecordRows("inserted", res.RowCount)
	metrics.RecordRows("failed", res.FailedRows)
	log.Info("table loaded", "table", name, "columns", len(cols), "rows", res.RowCount, "failed", res.FailedRows)
	return res, nil
}

func (l *Loader) tableName() string {
	if l.Table != "" {
		return l.Table
	}
	return DefaultTable
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
