// Package storage persists extraction results to SQL databases.
//
// Backends register themselves from init() in their own packages (sqlite,
// postgres, mssql); import internal/storage/all to link every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Sink.
type Config struct {
	Kind  string // registered backend kind, e.g. "sqlite"
	DSN   string // passed through to the backend driver
	Table string // result table; may be schema-qualified where the backend supports it
}

// Sink is a backend-agnostic destination for result rows.
//
// Each backend implements idempotency in its own idiomatic way (SQLite
// INSERT OR IGNORE, Postgres ON CONFLICT, SQL Server NOT EXISTS), keyed on
// Row.RowHash, so re-running a directory does not duplicate rows.
type Sink interface {
	// EnsureTable creates the result table if it does not exist.
	EnsureTable(ctx context.Context) error

	// WriteRows inserts rows, skipping any whose row_hash is already stored,
	// and returns the number of rows actually inserted.
	WriteRows(ctx context.Context, rows []Row) (int64, error)

	// Close releases backend resources. Call it once.
	Close() error
}

// Factory opens a Sink for cfg.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init function and panics on an empty kind, a nil
// factory or a duplicate registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Sink using the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing sink kind")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("storage: missing table name")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported sink kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
