// Command extract-html applies a declarative extraction schema to HTML and
// prints the extracted values as JSON.
//
// Usage (stdin):
//
//	cat page.html | extract-html -schema product.yaml
//
// Usage (file):
//
//	extract-html -schema product.yaml -in page.html
//
// Usage (directory mode, one JSON object per file):
//
//	extract-html -schema product.yaml -dir ./pages -workers 8
//
// Persist every result to a database:
//
//	extract-html -schema product.yaml -dir ./pages -sink sqlite -dsn results.db
//
// Debug (print matches of a selector):
//
//	cat page.html | extract-html -selector "div#firmInfo" -target text
//
// Settings that are not given as flags are read from the environment and an
// optional .env file: EXTRACT_SINK, EXTRACT_DSN, EXTRACT_TABLE,
// EXTRACT_WORKERS, METRICS_BACKEND, METRICS_TAGS and METRICS_JOB.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"htmlextract/internal/config"
	"htmlextract/internal/extracthtml"
	"htmlextract/internal/metrics"
	"htmlextract/internal/metrics/datadog"
	"htmlextract/internal/parsers"
	"htmlextract/internal/storage"

	// register all backends with the storage factory.
	_ "htmlextract/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	schemaPath  string
	inPath      string
	dir         string
	contentType string
	maxBytes    int64
	workers     int

	selector string
	target   string

	sink  string
	dsn   string
	table string

	metricsBackend string
	envFile        string

	strict  bool
	verbose bool
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config/schema errors
//   - 1 for operational/runtime errors, and extraction failures
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("extract-html", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.schemaPath, "schema", "", "Path to schema file (.yaml, .yml or .json)")
	fs.StringVar(&o.inPath, "in", "", "Optional: read HTML from this file instead of stdin")
	fs.StringVar(&o.dir, "dir", "", "Optional: directory of HTML files to extract (one result per file)")
	fs.StringVar(&o.contentType, "content-type", "", "Optional: Content-Type charset hint, e.g. \"text/html; charset=windows-1252\"")
	fs.Int64Var(&o.maxBytes, "max-bytes", extracthtml.DefaultMaxDocumentBytes, "Reject documents larger than this many bytes")
	fs.IntVar(&o.workers, "workers", 0, "Concurrent documents in -dir mode (env EXTRACT_WORKERS, default GOMAXPROCS)")
	fs.StringVar(&o.selector, "selector", "", "Debug: CSS selector to print matches for (not JSON)")
	fs.StringVar(&o.target, "target", "outer_html", "Debug: how to print -selector matches (text, inner_html, outer_html)")
	fs.StringVar(&o.sink, "sink", "", "Optional: persist results to sqlite, postgres or mssql (env EXTRACT_SINK)")
	fs.StringVar(&o.dsn, "dsn", "", "Data source name for -sink (env EXTRACT_DSN)")
	fs.StringVar(&o.table, "table", "", "Result table for -sink (env EXTRACT_TABLE, default "+config.DefaultTable+")")
	fs.StringVar(&o.metricsBackend, "metrics-backend", "", "Metrics backend: none or datadog (env METRICS_BACKEND)")
	fs.StringVar(&o.envFile, "env", ".env", "Optional dotenv file")
	fs.BoolVar(&o.strict, "strict", false, "In -dir mode, exit 1 when any document has field errors")
	fs.BoolVar(&o.verbose, "v", false, "Enable debug logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	log := newLogger(stderr, o.verbose)

	env, err := config.LoadEnv(o.envFile)
	if err != nil {
		log.Error().Err(err).Msg("load environment")
		return 2
	}
	applyEnv(&o, env)

	loader := extracthtml.NewLoader(o.maxBytes)

	// Debug selector mode needs HTML input but no schema.
	if o.selector != "" {
		return runDebug(ctx, o, loader, stdin, stdout, log)
	}

	if o.schemaPath == "" {
		fmt.Fprintln(stderr, "missing -schema")
		return 2
	}
	if o.dir != "" && o.inPath != "" {
		fmt.Fprintln(stderr, "-dir and -in are mutually exclusive")
		return 2
	}

	schema, err := extracthtml.LoadSchemaFile(o.schemaPath)
	if err != nil {
		log.Error().Err(err).Msg("load schema")
		return 2
	}
	compiled, err := extracthtml.Compile(schema, extracthtml.CompileOptions{
		Parsers: parsers.Builtin(),
		Logger:  &log,
	})
	if err != nil {
		log.Error().Err(err).Str("schema", o.schemaPath).Msg("compile schema")
		return 2
	}

	closeMetrics, err := setupMetrics(ctx, o.metricsBackend, env, log)
	if err != nil {
		log.Error().Err(err).Msg("metrics")
		return 2
	}
	defer closeMetrics()

	results, err := openResultWriter(ctx, o.sink, o.dsn, o.table)
	if err != nil {
		log.Error().Err(err).Str("sink", o.sink).Msg("open sink")
		return 1
	}

	var code int
	if o.dir != "" {
		code = runDir(ctx, o, compiled, loader, results, stdout, log)
	} else {
		code = runSingle(ctx, o, compiled, loader, results, stdin, stdout, stderr, log)
	}

	if results != nil {
		if err := results.Close(ctx); err != nil {
			log.Error().Err(err).Str("sink", o.sink).Msg("flush results")
			return 1
		}
		log.Info().Str("sink", o.sink).Int64("rows_written", results.Written()).Msg("results persisted")
	}
	return code
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}).
		Level(level).
		With().Timestamp().Logger()
}

// applyEnv fills settings left empty on the command line: flag → env → default.
func applyEnv(o *options, env config.Env) {
	if o.sink == "" {
		o.sink = env.Sink
	}
	if o.dsn == "" {
		o.dsn = env.DSN
	}
	if o.table == "" {
		o.table = env.Table
	}
	if o.workers <= 0 {
		o.workers = env.Workers
	}
	if o.metricsBackend == "" {
		o.metricsBackend = env.MetricsBackend
	}
	o.sink = strings.ToLower(strings.TrimSpace(o.sink))
	o.metricsBackend = strings.ToLower(strings.TrimSpace(o.metricsBackend))
}

func runDebug(ctx context.Context, o options, loader *extracthtml.Loader, stdin io.Reader, stdout io.Writer, log zerolog.Logger) int {
	mode, ok := extracthtml.ParseTargetMode(o.target)
	if !ok {
		log.Error().Str("target", o.target).Msg("unknown -target")
		return 2
	}
	html, err := loader.Load(ctx, extracthtml.Input{Path: o.inPath, Stdin: stdin, ContentType: o.contentType})
	if err != nil {
		log.Error().Err(err).Msg("load html")
		return 1
	}
	if err := extracthtml.DebugPrintSelector(stdout, html, o.selector, mode); err != nil {
		log.Error().Err(err).Msg("debug selector")
		return 1
	}
	return 0
}

// runSingle extracts one document from -in or stdin. The values object goes
// to stdout on success; on failure each field error is printed to stderr.
func runSingle(
	ctx context.Context,
	o options,
	c *extracthtml.Compiled,
	loader *extracthtml.Loader,
	results *resultWriter,
	stdin io.Reader,
	stdout, stderr io.Writer,
	log zerolog.Logger,
) int {
	source := "stdin"
	if o.inPath != "" {
		source = o.inPath
	}

	start := time.Now()
	res := extracthtml.DocumentResult{SourceFile: source}
	html, err := loader.Load(ctx, extracthtml.Input{Path: o.inPath, Stdin: stdin, ContentType: o.contentType})
	if err == nil {
		res.Outcome, err = c.ExtractString(html)
	}
	res.Err = err
	res.Duration = time.Since(start)
	extracthtml.RecordResult(res)

	if results != nil {
		if err := results.Add(ctx, res); err != nil {
			log.Error().Err(err).Msg("persist result")
			return 1
		}
	}

	if res.Err != nil {
		log.Error().Err(res.Err).Str("source", source).Msg("extract")
		return 1
	}
	if !res.Outcome.OK() {
		for i := range res.Outcome.Errors {
			fmt.Fprintln(stderr, res.Outcome.Errors[i].Error())
		}
		return 1
	}

	b, err := extracthtml.MarshalNoEscape(res.Outcome.Values)
	if err != nil {
		log.Error().Err(err).Msg("encode json")
		return 1
	}
	if _, err := fmt.Fprintf(stdout, "%s\n", b); err != nil {
		log.Error().Err(err).Msg("write output")
		return 1
	}
	return 0
}

// runDir streams one JSON array for the whole directory. With -strict any
// document that is not fully extracted makes the exit code 1.
func runDir(
	ctx context.Context,
	o options,
	c *extracthtml.Compiled,
	loader *extracthtml.Loader,
	results *resultWriter,
	stdout io.Writer,
	log zerolog.Logger,
) int {
	var total, failed int
	opts := extracthtml.DirOptions{
		Workers: o.workers,
		Loader:  loader,
		Logger:  &log,
		OnResult: func(r extracthtml.DocumentResult) error {
			total++
			if r.Status() != metrics.StatusOK {
				failed++
			}
			if results == nil {
				return nil
			}
			return results.Add(ctx, r)
		},
	}

	start := time.Now()
	if err := extracthtml.StreamFromDir(ctx, stdout, o.dir, c, opts); err != nil {
		log.Error().Err(err).Str("dir", o.dir).Msg("dir extract")
		return 1
	}
	log.Info().
		Str("dir", o.dir).
		Int("documents", total).
		Int("failed", failed).
		Dur("took", time.Since(start)).
		Msg("directory extracted")

	if o.strict && failed > 0 {
		return 1
	}
	return 0
}

// setupMetrics installs the requested backend and returns a func that
// flushes and uninstalls it.
func setupMetrics(ctx context.Context, name string, env config.Env, log zerolog.Logger) (func(), error) {
	switch name {
	case "", "none":
		return func() {}, nil
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName: env.MetricsJob,
			Tags:    datadog.ParseTagsCSV(env.MetricsTags),
		})
		if err != nil {
			return nil, fmt.Errorf("datadog backend: %w", err)
		}
		metrics.SetBackend(b)
		return func() {
			metrics.SetBackend(nil)
			if err := b.Close(); err != nil {
				log.Warn().Err(err).Msg("final metrics flush failed")
			}
		}, nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q (want none or datadog)", name)
	}
}

// resultWriter turns document results into rows and batches them into a
// storage sink.
type resultWriter struct {
	sink  storage.Sink
	batch *storage.Batcher
	now   func() time.Time
}

// openResultWriter returns nil when no sink kind is configured.
func openResultWriter(ctx context.Context, kind, dsn, table string) (*resultWriter, error) {
	if kind == "" {
		return nil, nil
	}
	if dsn == "" {
		return nil, fmt.Errorf("sink %s requires -dsn or EXTRACT_DSN", kind)
	}

	s, err := storage.New(ctx, storage.Config{Kind: kind, DSN: dsn, Table: table})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureTable(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return &resultWriter{
		sink:  s,
		batch: storage.NewBatcher(s, kind, storage.DefaultBatchSize),
		now:   time.Now,
	}, nil
}

func (w *resultWriter) Add(ctx context.Context, r extracthtml.DocumentResult) error {
	row, err := resultRow(r, w.now())
	if err != nil {
		return err
	}
	return w.batch.Add(ctx, row)
}

func (w *resultWriter) Written() int64 { return w.batch.Written() }

// Close flushes buffered rows and closes the sink.
func (w *resultWriter) Close(ctx context.Context) error {
	return errors.Join(w.batch.Flush(ctx), w.sink.Close())
}

// resultRow maps a document result to a storage row. Unreadable documents
// store their error message as a JSON string in errors_json.
func resultRow(r extracthtml.DocumentResult, at time.Time) (storage.Row, error) {
	if r.Err != nil {
		return storage.NewRow(r.SourceFile, false, nil, r.Err.Error(), at)
	}
	var errs any
	if len(r.Outcome.Errors) > 0 {
		errs = r.Outcome.Errors
	}
	return storage.NewRow(r.SourceFile, r.Outcome.OK(), r.Outcome.Values, errs, at)
}
