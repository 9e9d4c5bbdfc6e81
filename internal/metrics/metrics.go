// Package metrics is the backend-neutral metrics seam used by the extractor.
//
// Extraction code records through the package-level helpers; the command
// selects a concrete Backend (e.g. internal/metrics/datadog) with SetBackend.
// The default backend discards everything.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions. Backends decide which labels they keep.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names.
const (
	DocumentsTotal          = "extract_documents_total"
	FieldErrorsTotal        = "extract_field_errors_total"
	DocumentDurationSeconds = "extract_document_duration_seconds"
	RowsWrittenTotal        = "extract_rows_written_total"
)

// Document status label values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed" // parsed, but at least one field failed
	StatusError  = "error"  // unreadable or unparseable document
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend.
func Flush() error { return current().Flush() }

// RecordDocument records the outcome of extracting one document: its status,
// its wall time, and one error count per failing field code.
func RecordDocument(status string, d time.Duration, fieldErrorCodes []string) {
	b := current()
	b.IncCounter(DocumentsTotal, 1, Labels{"status": status})
	b.ObserveHistogram(DocumentDurationSeconds, d.Seconds(), Labels{"status": status})
	for _, code := range fieldErrorCodes {
		b.IncCounter(FieldErrorsTotal, 1, Labels{"code": code})
	}
}

// RecordRowsWritten counts rows persisted by a result sink.
func RecordRowsWritten(sink string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsWrittenTotal, float64(n), Labels{"sink": sink})
}
