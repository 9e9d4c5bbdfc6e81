// Package postgres is the Postgres result sink, built on pgx/v5.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"htmlextract/internal/storage"
)

// maxRowsPerStatement keeps bind parameters below Postgres' 65535 limit.
const maxRowsPerStatement = 1000

func init() {
	storage.Register("postgres", NewSink)
}

// pool is the subset of *pgxpool.Pool the sink uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Sink implements storage.Sink for Postgres.
//
// values_json and errors_json are jsonb, extracted_at is timestamptz, and
// row_hash carries a unique constraint so reruns are idempotent via
// ON CONFLICT DO NOTHING.
type Sink struct {
	pool  pool
	table string
}

// NewSink opens a connection pool for cfg.DSN.
func NewSink(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	p, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Sink{pool: p, table: cfg.Table}, nil
}

func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}

// EnsureTable creates the schema (for qualified names) and the table.
func (s *Sink) EnsureTable(ctx context.Context) error {
	schemaSQL, tableSQL := buildCreateSQL(s.table)
	if schemaSQL != "" {
		if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("postgres: create schema for %s: %w", s.table, err)
		}
	}
	if _, err := s.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", s.table, err)
	}
	return nil
}

// WriteRows inserts rows in one transaction and returns the number of rows
// actually inserted (duplicates by row_hash are skipped).
func (s *Sink) WriteRows(ctx context.Context, rows []storage.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var affected int64
	for _, chunk := range storage.Chunks(rows, maxRowsPerStatement) {
		q, args := buildInsertSQL(s.table, chunk)
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("postgres: insert into %s: %w", s.table, err)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return affected, nil
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

// splitQualifiedName splits "schema.table". Anything other than exactly two
// parts is treated as an unqualified name.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func buildCreateSQL(table string) (schemaSQL, tableSQL string) {
	if schema, _ := splitQualifiedName(table); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "id" UUID PRIMARY KEY,
  "source_file" TEXT NOT NULL,
  "ok" BOOLEAN NOT NULL,
  "values_json" JSONB,
  "errors_json" JSONB,
  "row_hash" TEXT NOT NULL UNIQUE,
  "extracted_at" TIMESTAMPTZ NOT NULL
);`, pgTableIdent(table))
	return schemaSQL, tableSQL
}

// buildInsertSQL builds one multi-row INSERT with $n placeholders. It is
// pure so placeholder numbering and ON CONFLICT can be tested without a
// database.
func buildInsertSQL(table string, rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")
	for i, c := range storage.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	ncol := len(storage.Columns)
	args := make([]any, 0, len(rows)*ncol)
	p := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < ncol; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
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

	b.WriteString(` ON CONFLICT ("row_hash") DO NOTHING;`)
	return b.String(), args
}
