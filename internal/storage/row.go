package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Columns is the column order every backend uses for the result table.
var Columns = []string{"id", "source_file", "ok", "values_json", "errors_json", "row_hash", "extracted_at"}

// Row is one persisted document result.
type Row struct {
	ID          string
	SourceFile  string
	OK          bool
	ValuesJSON  string // JSON object of extracted values; "" when the document was unreadable
	ErrorsJSON  string // JSON array of field errors, or a JSON string for document errors; "" when none
	RowHash     string // lowercase hex SHA-256, see NewRow
	ExtractedAt time.Time
}

// NewRow builds a Row from a document result. values and errs are marshaled
// with goccy/go-json; nil values produce "".
//
// RowHash covers source, values and errors, so re-extracting an unchanged
// document yields the same hash while a changed page produces a new row.
func NewRow(source string, ok bool, values, errs any, at time.Time) (Row, error) {
	vj, err := marshalOrEmpty(values)
	if err != nil {
		return Row{}, fmt.Errorf("encode values for %s: %w", source, err)
	}
	ej, err := marshalOrEmpty(errs)
	if err != nil {
		return Row{}, fmt.Errorf("encode errors for %s: %w", source, err)
	}

	return Row{
		ID:          uuid.NewString(),
		SourceFile:  source,
		OK:          ok,
		ValuesJSON:  vj,
		ErrorsJSON:  ej,
		RowHash:     RowHash(source, vj, ej),
		ExtractedAt: at.UTC(),
	}, nil
}

func marshalOrEmpty(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	b := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if s := string(b); s != "null" && s != "[]" {
		return s, nil
	}
	return "", nil
}

// RowHash hashes the canonical form
//
//	source_file=<source> 0x1f values=<values> 0x1f errors=<errors>
//
// where an empty component is encoded as a single NUL byte so that missing
// differs from empty.
func RowHash(source, valuesJSON, errorsJSON string) string {
	var b strings.Builder
	b.Grow(len(source) + len(valuesJSON) + len(errorsJSON) + 32)

	fields := [...]struct{ name, v string }{
		{"source_file", source},
		{"values", valuesJSON},
		{"errors", errorsJSON},
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(f.name)
		b.WriteByte('=')
		if f.v == "" {
			b.WriteByte('\x00')
			continue
		}
		b.WriteString(f.v)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// DedupeByHash keeps the first row for each RowHash, preserving order.
// Backends whose insert statement cannot collapse duplicates within one
// statement use it before writing.
func DedupeByHash(rows []Row) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		if _, dup := seen[r.RowHash]; dup {
			continue
		}
		seen[r.RowHash] = struct{}{}
		out = append(out, r)
	}
	return out
}

// NullIfEmpty maps "" to a SQL NULL argument.
func NullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Chunks splits rows into consecutive slices of at most size rows.
func Chunks(rows []Row, size int) [][]Row {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]Row
	for len(rows) > 0 {
		n := min(size, len(rows))
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}
