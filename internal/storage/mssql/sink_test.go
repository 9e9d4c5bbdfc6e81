package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"htmlextract/internal/storage"
)

func TestBuildCreateSQL_Guarded(t *testing.T) {
	t.Parallel()

	got := buildCreateSQL("dbo.results")
	if !strings.HasPrefix(got, "IF OBJECT_ID(N'[dbo].[results]', N'U') IS NULL") {
		t.Fatalf("missing OBJECT_ID guard: %s", got)
	}
	for _, want := range []string{"CREATE TABLE [dbo].[results]", "[values_json] NVARCHAR(MAX) NULL", "[ok] BIT NOT NULL", "[extracted_at] DATETIME2 NOT NULL", "[row_hash] CHAR(64) NOT NULL UNIQUE"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %s", want, got)
		}
	}
}

func TestBuildInsertNotExistsSQL(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []storage.Row{
		{ID: "1", SourceFile: "a.html", OK: true, ValuesJSON: "{}", RowHash: "h1", ExtractedAt: at},
		{ID: "2", SourceFile: "b.html", RowHash: "h2", ExtractedAt: at},
	}
	q, args := buildInsertNotExistsSQL("results", rows)

	if !strings.HasPrefix(q, "INSERT INTO [results] ([id], [source_file], [ok], [values_json], [errors_json], [row_hash], [extracted_at]) SELECT v.[id], ") {
		t.Fatalf("unexpected prefix: %s", q)
	}
	if !strings.Contains(q, "(@p8, @p9, @p10, @p11, @p12, @p13, @p14)") {
		t.Fatalf("unexpected placeholders: %s", q)
	}
	if !strings.HasSuffix(q, "WHERE NOT EXISTS (SELECT 1 FROM [results] t WHERE t.[row_hash] = v.[row_hash])") {
		t.Fatalf("missing NOT EXISTS: %s", q)
	}
	if len(args) != 14 {
		t.Fatalf("len(args) = %d", len(args))
	}
}

func TestMaxRowsPerStatement_UnderParameterLimit(t *testing.T) {
	t.Parallel()

	if n := maxRowsPerStatement * len(storage.Columns); n > 2100 {
		t.Fatalf("%d parameters per statement exceeds 2100", n)
	}
}

func TestMssqlTableIdent(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"results":        "[results]",
		"dbo.results":    "[dbo].[results]",
		"odd]name":       "[odd]]name]",
		" dbo . spaced ": "[dbo].[spaced]",
	}
	for in, want := range tests {
		if got := mssqlTableIdent(in); got != want {
			t.Errorf("mssqlTableIdent(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeTx struct {
	queries   []string
	argCounts []int
	committed bool
}

func (f *fakeTx) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, q)
	f.argCounts = append(f.argCounts, len(args))
	return fakeResult(len(args) / len(storage.Columns)), nil
}
func (f *fakeTx) Commit() error   { f.committed = true; return nil }
func (f *fakeTx) Rollback() error { return nil }

type fakeDB struct {
	tx *fakeTx
}

func (f *fakeDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return fakeResult(0), nil
}
func (f *fakeDB) BeginTx(context.Context, *sql.TxOptions) (txConn, error) { return f.tx, nil }
func (f *fakeDB) Close() error                                          { return nil }

func TestSink_WriteRows_DedupesAndChunks(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	s := &Sink{db: &fakeDB{tx: tx}, table: "results"}

	rows := make([]storage.Row, 0, maxRowsPerStatement+11)
	for i := 0; i < maxRowsPerStatement+10; i++ {
		rows = append(rows, storage.Row{ID: "x", RowHash: fmt.Sprintf("h%d", i)})
	}
	// Same hash as the first row: dropped before the insert.
	rows = append(rows, storage.Row{ID: "dup", RowHash: rows[0].RowHash})

	n, err := s.WriteRows(context.Background(), rows)
	if err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if n != int64(maxRowsPerStatement+10) {
		t.Fatalf("affected = %d", n)
	}
	if len(tx.queries) != 2 || !tx.committed {
		t.Fatalf("queries=%d committed=%v", len(tx.queries), tx.committed)
	}
	if tx.argCounts[1] != 10*len(storage.Columns) {
		t.Fatalf("second chunk args = %d", tx.argCounts[1])
	}
}
