// Package config reads process-level settings for the extract-html command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds settings taken from the environment. Command-line flags override
// every field.
type Env struct {
	Sink    string // EXTRACT_SINK: "", sqlite, postgres or mssql
	DSN     string // EXTRACT_DSN
	Table   string // EXTRACT_TABLE
	Workers int    // EXTRACT_WORKERS; 0 means GOMAXPROCS

	MetricsBackend string // METRICS_BACKEND: none or datadog
	MetricsTags    string // METRICS_TAGS, comma-separated
	MetricsJob     string // METRICS_JOB
}

// DefaultTable is the result table name used when none is configured.
const DefaultTable = "extract_results"

// LoadEnv loads the given dotenv files (".env" when none are named) into the
// process environment and returns the resulting settings. Variables already
// set in the environment win over dotenv values. Missing dotenv files are not
// an error.
func LoadEnv(files ...string) (Env, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, fmt.Errorf("load dotenv: %w", err)
	}

	workers, err := getEnvInt("EXTRACT_WORKERS", 0)
	if err != nil {
		return Env{}, err
	}

	return Env{
		Sink:           strings.ToLower(getEnv("EXTRACT_SINK", "")),
		DSN:            getEnv("EXTRACT_DSN", ""),
		Table:          getEnv("EXTRACT_TABLE", DefaultTable),
		Workers:        workers,
		MetricsBackend: strings.ToLower(getEnv("METRICS_BACKEND", "none")),
		MetricsTags:    getEnv("METRICS_TAGS", ""),
		MetricsJob:     getEnv("METRICS_JOB", "extract-html"),
	}, nil
}

// getEnv reads key with a default fallback. Whitespace-only values count as
// unset.
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s=%q: want a non-negative integer", key, v)
	}
	return n, nil
}
