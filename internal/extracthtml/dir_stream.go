package extracthtml

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"htmlextract/internal/metrics"
)

// DocumentResult is the extraction result for one file of a directory run.
type DocumentResult struct {
	SourceFile string // base name within the directory
	Outcome    *Outcome
	Err        error // read or parse failure; Outcome is nil when set
	Duration   time.Duration
}

// Status classifies the result as metrics.StatusOK, StatusFailed or
// StatusError.
func (r DocumentResult) Status() string {
	switch {
	case r.Err != nil:
		return metrics.StatusError
	case r.Outcome != nil && !r.Outcome.OK():
		return metrics.StatusFailed
	default:
		return metrics.StatusOK
	}
}

// DirOptions configures ExtractDir and StreamFromDir.
type DirOptions struct {
	// Workers bounds concurrent documents. <= 0 means GOMAXPROCS.
	Workers int

	// Loader reads each file. Nil uses NewLoader(0).
	Loader *Loader

	// Logger receives per-document diagnostics. Nil disables logging.
	Logger *zerolog.Logger

	// OnResult, if set, is called once per document in filename order as
	// soon as that document and all documents before it are done. A non-nil
	// error stops the run.
	OnResult func(DocumentResult) error
}

// ExtractDir extracts c from every regular file in dir.
//
// Documents are processed concurrently but results are returned (and passed
// to OnResult) in stable filename order. A document that cannot be read or
// parsed does not stop the run; its result carries Err instead.
func ExtractDir(ctx context.Context, dir string, c *Compiled, opts DirOptions) ([]DocumentResult, error) {
	names, err := listDocuments(dir)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	loader := opts.Loader
	if loader == nil {
		loader = NewLoader(0)
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]DocumentResult, len(names))
	ready := make([]chan struct{}, len(names))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	// The emitter walks results in order while workers fill them in.
	var emitErr error
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := range names {
			<-ready[i]
			if emitErr != nil || opts.OnResult == nil {
				continue
			}
			if err := opts.OnResult(results[i]); err != nil {
				emitErr = err
				cancel()
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			defer close(ready[i])
			if err := ctx.Err(); err != nil {
				results[i] = DocumentResult{SourceFile: name, Err: err}
				return nil
			}
			res := extractFile(ctx, loader, c, dir, name)
			results[i] = res

			RecordResult(res)
			switch res.Status() {
			case metrics.StatusError:
				log.Warn().Err(res.Err).Str("file", name).Msg("document skipped")
			case metrics.StatusFailed:
				log.Debug().Str("file", name).Int("field_errors", len(res.Outcome.Errors)).Dur("took", res.Duration).Msg("document extracted with errors")
			default:
				log.Debug().Str("file", name).Dur("took", res.Duration).Msg("document extracted")
			}
			return nil
		})
	}
	_ = g.Wait()
	<-emitted

	if emitErr != nil {
		return results, emitErr
	}
	if err := parent.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func extractFile(ctx context.Context, loader *Loader, c *Compiled, dir, name string) DocumentResult {
	start := time.Now()
	res := DocumentResult{SourceFile: name}

	html, err := loader.Load(ctx, Input{Path: filepath.Join(dir, name)})
	if err == nil {
		res.Outcome, err = c.ExtractString(html)
	}
	res.Err = err
	res.Duration = time.Since(start)
	return res
}

func listDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RecordResult reports r to the process-wide metrics backend.
func RecordResult(r DocumentResult) {
	metrics.RecordDocument(r.Status(), r.Duration, errorCodes(r.Outcome))
}

func errorCodes(o *Outcome) []string {
	if o == nil || len(o.Errors) == 0 {
		return nil
	}
	out := make([]string, len(o.Errors))
	for i := range o.Errors {
		out[i] = string(o.Errors[i].Code)
	}
	return out
}

// documentJSON is the streamed form of a DocumentResult.
type documentJSON struct {
	SourceFile string      `json:"source_file"`
	OK         bool        `json:"ok"`
	Values     *Record     `json:"values,omitempty"`
	Errors     FieldErrors `json:"errors,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func newDocumentJSON(r DocumentResult) documentJSON {
	d := documentJSON{SourceFile: r.SourceFile, OK: r.Status() == metrics.StatusOK}
	if r.Err != nil {
		d.Error = r.Err.Error()
		return d
	}
	d.Values = r.Outcome.Values
	d.Errors = r.Outcome.Errors
	return d
}

// StreamFromDir writes a single JSON array to w with one object per file:
//
//	{"source_file": "a.html", "ok": true, "values": {...}}
//
// Ordering is stable by filename. Failed fields appear under "errors";
// unreadable documents carry "error" and no values. opts.OnResult, if set,
// still sees every result before it is written. If the run stops early the
// array is still closed and holds the documents written before the failure.
func StreamFromDir(ctx context.Context, w io.Writer, dir string, c *Compiled, opts DirOptions) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	next := opts.OnResult
	opts.OnResult = func(r DocumentResult) error {
		if next != nil {
			if err := next(r); err != nil {
				return err
			}
		}
		b, err := MarshalNoEscape(newDocumentJSON(r))
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.SourceFile, err)
		}
		if !first {
			if _, err := io.WriteString(w, ",\n"); err != nil {
				return fmt.Errorf("write comma: %w", err)
			}
		}
		first = false
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		return nil
	}

	_, runErr := ExtractDir(ctx, dir, c, opts)

	// The array is closed even when the run stopped early, so the documents
	// written so far stay a valid JSON value.
	if _, err := io.WriteString(w, "]\n"); err != nil && runErr == nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return runErr
}
