// Package sqlite is the SQLite result sink, built on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"htmlextract/internal/storage"
)

// maxRowsPerStatement keeps bound parameters well below SQLite's limit.
const maxRowsPerStatement = 500

func init() {
	storage.Register("sqlite", NewSink)
}

// Sink implements storage.Sink for SQLite.
//
// SQLite has no native timestamp type, so extracted_at is stored as an
// RFC3339Nano UTC string, which sorts and round-trips reliably.
type Sink struct {
	db    *sql.DB
	table string
}

// NewSink opens the database at cfg.DSN (a file path or "file:" URI).
func NewSink(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Sink{db: db, table: cfg.Table}, nil
}

func (s *Sink) Close() error { return s.db.Close() }

// EnsureTable creates the result table if needed.
func (s *Sink) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, buildCreateSQL(s.table)); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", s.table, err)
	}
	return nil
}

// WriteRows inserts rows in one transaction. Rows whose row_hash already
// exists are ignored.
func (s *Sink) WriteRows(ctx context.Context, rows []storage.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var affected int64
	for _, chunk := range storage.Chunks(rows, maxRowsPerStatement) {
		q, args := buildInsertSQL(s.table, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert into %s: %w", s.table, err)
		}
		n, _ := res.RowsAffected()
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return affected, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// tableIdent quotes each part of an optionally schema-qualified name.
func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = sqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "id" TEXT PRIMARY KEY,
  "source_file" TEXT NOT NULL,
  "ok" INTEGER NOT NULL,
  "values_json" TEXT,
  "errors_json" TEXT,
  "row_hash" TEXT NOT NULL UNIQUE,
  "extracted_at" TEXT NOT NULL
);`, tableIdent(table))
}

// buildInsertSQL is pure so statement shape and argument order can be tested
// without a database.
func buildInsertSQL(table string, rows []storage.Row) (string, []any) {
	cols := make([]string, len(storage.Columns))
	for i, c := range storage.Columns {
		cols[i] = sqlIdent(c)
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(cols)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args,
			r.ID,
			r.SourceFile,
			r.OK,
			storage.NullIfEmpty(r.ValuesJSON),
			storage.NullIfEmpty(r.ErrorsJSON),
			r.RowHash,
			r.ExtractedAt.UTC().Format(time.RFC3339Nano),
		)
	}
	return b.String(), args
}
