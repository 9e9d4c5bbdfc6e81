package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"htmlextract/internal/storage"
)

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		table      string
		wantSchema string
		wantTable  string
	}{
		{"unqualified", "extract_results", "", `CREATE TABLE IF NOT EXISTS "extract_results" (`},
		{"qualified", "scrape.results", `CREATE SCHEMA IF NOT EXISTS "scrape";`, `CREATE TABLE IF NOT EXISTS "scrape"."results" (`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			schemaSQL, tableSQL := buildCreateSQL(tc.table)
			if schemaSQL != tc.wantSchema {
				t.Fatalf("schemaSQL = %q, want %q", schemaSQL, tc.wantSchema)
			}
			if !strings.HasPrefix(tableSQL, tc.wantTable) {
				t.Fatalf("tableSQL = %q", tableSQL)
			}
			for _, want := range []string{`"values_json" JSONB`, `"row_hash" TEXT NOT NULL UNIQUE`, `"extracted_at" TIMESTAMPTZ NOT NULL`} {
				if !strings.Contains(tableSQL, want) {
					t.Fatalf("tableSQL missing %q: %s", want, tableSQL)
				}
			}
		})
	}
}

func TestBuildInsertSQL_PlaceholdersAndConflict(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	rows := []storage.Row{
		{ID: "a", SourceFile: "a.html", OK: true, ValuesJSON: `{"x":1}`, RowHash: "h1", ExtractedAt: at},
		{ID: "b", SourceFile: "b.html", ErrorsJSON: `[{"code":"no_match"}]`, RowHash: "h2", ExtractedAt: at},
	}

	q, args := buildInsertSQL("public.results", rows)

	if !strings.HasPrefix(q, `INSERT INTO "public"."results" ("id", "source_file", "ok", "values_json", "errors_json", "row_hash", "extracted_at") VALUES `) {
		t.Fatalf("unexpected prefix: %s", q)
	}
	if !strings.Contains(q, "($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14)") {
		t.Fatalf("unexpected placeholders: %s", q)
	}
	if !strings.HasSuffix(q, `ON CONFLICT ("row_hash") DO NOTHING;`) {
		t.Fatalf("missing ON CONFLICT: %s", q)
	}
	if len(args) != 14 {
		t.Fatalf("len(args) = %d, want 14", len(args))
	}
	if args[4] != nil || args[10] != nil {
		t.Fatalf("empty JSON columns should bind NULL: %#v %#v", args[4], args[10])
	}
	if args[6] != at {
		t.Fatalf("extracted_at = %#v", args[6])
	}
}

type fakeTx struct {
	pgx.Tx
	execs      []string
	committed  bool
	rolledBack bool
	execErr    error
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("INSERT 0 " + strconv.Itoa(len(args)/len(storage.Columns))), nil
}

func (f *fakeTx) Commit(context.Context) error   { f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rolledBack = true; return nil }

type fakePool struct {
	tx    *fakeTx
	execs []string
}

func (f *fakePool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakePool) Begin(context.Context) (pgx.Tx, error) { return f.tx, nil }
func (f *fakePool) Close()                               {}

func TestSink_WriteRows_ChunksInOneTransaction(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	s := &Sink{pool: &fakePool{tx: tx}, table: "results"}

	rows := make([]storage.Row, maxRowsPerStatement+5)
	for i := range rows {
		rows[i] = storage.Row{ID: "id", RowHash: "h", ExtractedAt: time.Now()}
	}

	n, err := s.WriteRows(context.Background(), rows)
	if err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if n != int64(len(rows)) {
		t.Fatalf("affected = %d, want %d", n, len(rows))
	}
	if len(tx.execs) != 2 {
		t.Fatalf("statements = %d, want 2", len(tx.execs))
	}
	if !tx.committed {
		t.Fatalf("transaction not committed")
	}
}

func TestSink_WriteRows_ErrorRollsBack(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tx := &fakeTx{execErr: boom}
	s := &Sink{pool: &fakePool{tx: tx}, table: "results"}

	_, err := s.WriteRows(context.Background(), []storage.Row{{ID: "x", RowHash: "h"}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v", tx.committed, tx.rolledBack)
	}
}

func TestSink_EnsureTable_QualifiedCreatesSchemaFirst(t *testing.T) {
	t.Parallel()

	p := &fakePool{}
	s := &Sink{pool: p, table: "scrape.results"}
	if err := s.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if len(p.execs) != 2 || !strings.HasPrefix(p.execs[0], "CREATE SCHEMA") {
		t.Fatalf("execs = %q", p.execs)
	}
}
