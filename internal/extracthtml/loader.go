package extracthtml

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html/charset"
)

// DefaultMaxDocumentBytes caps a single loaded document.
const DefaultMaxDocumentBytes = 32 << 20

// Input describes where HTML should come from.
type Input struct {
	// Path, if provided, is read from the local filesystem.
	Path string

	// Stdin is used when Path is empty. If nil, stdin reads as empty.
	Stdin io.Reader

	// ContentType is an optional Content-Type value (e.g. "text/html;
	// charset=windows-1252") used as a charset hint. Without it the charset
	// is sniffed from <meta> tags and byte order marks.
	ContentType string
}

// Loader reads HTML and decodes it to UTF-8 with a consistent size policy.
type Loader struct {
	maxBytes int64
}

// NewLoader creates a Loader. A non-positive maxBytes selects
// DefaultMaxDocumentBytes.
func NewLoader(maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &Loader{maxBytes: maxBytes}
}

// Load returns the UTF-8 HTML source for either a file (when input.Path is
// set) or stdin.
//
// Documents larger than the loader's limit are rejected rather than
// truncated.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		src  io.Reader
		name = "stdin"
	)
	if p := strings.TrimSpace(input.Path); p != "" {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", p, err)
		}
		defer f.Close()
		src, name = f, p
	} else {
		if input.Stdin == nil {
			return "", nil
		}
		src = input.Stdin
	}

	raw, err := io.ReadAll(io.LimitReader(src, l.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(raw)) > l.maxBytes {
		return "", fmt.Errorf("read %s: document exceeds %d bytes", name, l.maxBytes)
	}

	r, err := charset.NewReader(bytes.NewReader(raw), input.ContentType)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(b), nil
}
