package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"tablesql/internal/schema"
	"tablesql/internal/storage"
)

type execCall struct {
	sql  string
	args []any
}

type fakePool struct {
	execs   []execCall
	execErr error
	closed  int
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported by fake")
}

func (f *fakePool) Close() { f.closed++ }

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got, err := Dialect.CreateTableSQL("extracted_table", []storage.Column{
		{Name: "Country", Type: schema.StorageText},
		{Name: "Population", Type: schema.StorageInteger},
		{Name: "GDP", Type: schema.StorageReal},
	})
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	want := `CREATE TABLE "extracted_table" ("Country" TEXT, "Population" BIGINT, "GDP" DOUBLE PRECISION)`
	if got != want {
		t.Fatalf("CreateTableSQL()=%s, want %s", got, want)
	}
}

func TestStore_InsertUsesNumberedPlaceholders(t *testing.T) {
	t.Parallel()

	fp := &fakePool{}
	s := &Store{pool: fp}
	if err := s.InsertRow(context.Background(), "t", []string{"a", "b", "c"}, []any{"x", int64(1), nil}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if len(fp.execs) != 1 {
		t.Fatalf("exec calls=%d", len(fp.execs))
	}
	if fp.execs[0].sql != `INSERT INTO "t" ("a", "b", "c") VALUES ($1, $2, $3)` {
		t.Fatalf("sql=%s", fp.execs[0].sql)
	}
	if len(fp.execs[0].args) != 3 {
		t.Fatalf("args=%v", fp.execs[0].args)
	}
}

func TestStore_WrapsExecErrors(t *testing.T) {
	t.Parallel()

	fp := &fakePool{execErr: errors.New("relation exists")}
	s := &Store{pool: fp}
	err := s.CreateTable(context.Background(), "t", []storage.Column{{Name: "a", Type: schema.StorageText}})
	if err == nil || !strings.Contains(err.Error(), "create table t") {
		t.Fatalf("CreateTable err=%v", err)
	}
	if err := s.DropTable(context.Background(), "t"); err == nil {
		t.Fatalf("DropTable err=nil, want wrapped error")
	}
	if fp.execs[1].sql != `DROP TABLE IF EXISTS "t"` {
		t.Fatalf("drop sql=%s", fp.execs[1].sql)
	}
}

func TestStore_CloseOnce(t *testing.T) {
	fp := &fakePool{}
	s := &Store{pool: fp}
	s.Close()
	s.Close()
	if fp.closed != 1 {
		t.Fatalf("closed=%d, want 1", fp.closed)
	}
}

func TestNormalizeNumeric(t *testing.T) {
	var n pgtype.Numeric
	if err := n.Scan("12.5"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got := normalize(n); got != 12.5 {
		t.Fatalf("normalize(numeric)=%#v, want 12.5", got)
	}
	if got := normalize(pgtype.Numeric{}); got != nil {
		t.Fatalf("normalize(null numeric)=%#v, want nil", got)
	}
	if got := normalize(int32(7)); got != int64(7) {
		t.Fatalf("normalize(int32)=%#v", got)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), storage.Config{Kind: "postgres"}); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
