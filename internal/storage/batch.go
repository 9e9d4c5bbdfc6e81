package storage

import (
	"context"
	"fmt"

	"htmlextract/internal/metrics"
)

// DefaultBatchSize is the number of rows buffered before a write.
const DefaultBatchSize = 500

// Batcher buffers rows and writes them to a Sink in fixed-size batches.
// It is not safe for concurrent use; directory runs feed it from the
// ordered result callback.
type Batcher struct {
	sink    Sink
	kind    string
	size    int
	buf     []Row
	written int64
}

// NewBatcher returns a Batcher writing to sink. kind labels the rows-written
// metric. A non-positive size selects DefaultBatchSize.
func NewBatcher(sink Sink, kind string, size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{sink: sink, kind: kind, size: size, buf: make([]Row, 0, size)}
}

// Add buffers r and writes a batch when the buffer is full.
func (b *Batcher) Add(ctx context.Context, r Row) error {
	b.buf = append(b.buf, r)
	if len(b.buf) < b.size {
		return nil
	}
	return b.Flush(ctx)
}

// Flush writes any buffered rows.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	n, err := b.sink.WriteRows(ctx, b.buf)
	if err != nil {
		return fmt.Errorf("write %d rows: %w", len(b.buf), err)
	}
	b.written += n
	metrics.RecordRowsWritten(b.kind, int(n))
	b.buf = b.buf[:0]
	return nil
}

// Written reports rows inserted so far; rows skipped as duplicates are not
// counted.
func (b *Batcher) Written() int64 { return b.written }
