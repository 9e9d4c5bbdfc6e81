// Package mssql is the Microsoft SQL Server result sink.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"htmlextract/internal/storage"
)

// SQL Server allows at most 2100 parameters per statement; each row binds
// len(storage.Columns) of them.
const maxRowsPerStatement = 2000 / 7

func init() {
	storage.Register("mssql", NewSink)
}

// Sink implements storage.Sink for SQL Server.
//
// SQL Server has no ON CONFLICT, so inserts use
// INSERT ... SELECT FROM (VALUES ...) WHERE NOT EXISTS against row_hash.
// NOT EXISTS does not collapse duplicates inside one VALUES list, so rows
// are deduplicated by hash before building the statement.
type Sink struct {
	db    dbConn
	table string
}

// NewSink opens cfg.DSN with the "sqlserver" driver and pings it.
func NewSink(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Sink{db: &sqlDB{db: raw}, table: cfg.Table}, nil
}

func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureTable creates the result table when it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, buildCreateSQL(s.table)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", s.table, err)
	}
	return nil
}

// WriteRows inserts rows whose row_hash is not yet present, in one
// transaction.
func (s *Sink) WriteRows(ctx context.Context, rows []storage.Row) (int64, error) {
	rows = storage.DedupeByHash(rows)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, chunk := range storage.Chunks(rows, maxRowsPerStatement) {
		q, args := buildInsertNotExistsSQL(s.table, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert into %s: %w", s.table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return total, nil
}

func buildCreateSQL(table string) string {
	ident := mssqlTableIdent(table)
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
BEGIN
  CREATE TABLE %s (
    [id] UNIQUEIDENTIFIER NOT NULL PRIMARY KEY,
    [source_file] NVARCHAR(1024) NOT NULL,
    [ok] BIT NOT NULL,
    [values_json] NVARCHAR(MAX) NULL,
    [errors_json] NVARCHAR(MAX) NULL,
    [row_hash] CHAR(64) NOT NULL UNIQUE,
    [extracted_at] DATETIME2 NOT NULL
  );
END;`, strings.ReplaceAll(ident, "'", "''"), ident)
}

// buildInsertNotExistsSQL builds an idempotent insert keyed on row_hash:
//
//	INSERT INTO t (cols) SELECT v.cols FROM (VALUES (...), ...) AS v(cols)
//	WHERE NOT EXISTS (SELECT 1 FROM t WHERE t.row_hash = v.row_hash)
func buildInsertNotExistsSQL(table string, rows []storage.Row) (string, []any) {
	cols := make([]string, len(storage.Columns))
	vcols := make([]string, len(storage.Columns))
	for i, c := range storage.Columns {
		cols[i] = mssqlIdent(c)
		vcols[i] = "v." + cols[i]
	}
	ident := mssqlTableIdent(table)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ident)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") SELECT ")
	b.WriteString(strings.Join(vcols, ", "))
	b.WriteString(" FROM (VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	p := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args,
			r.ID,
			r.SourceFile,
			r.OK,
			storage.NullIfEmpty(r.ValuesJSON),
			storage.NullIfEmpty(r.ErrorsJSON),
			r.RowHash,
			r.ExtractedAt,
		)
	}

	b.WriteString(") AS v(")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(ident)
	b.WriteString(" t WHERE t.[row_hash] = v.[row_hash])")

	return b.String(), args
}

// mssqlIdent bracket-quotes a single identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
//	"dbo.results" -> [dbo].[results]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is the part of *sql.DB the sink uses.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }
