package extracthtml

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a class of extraction or schema failure.
//
// Code implements error so callers can match with errors.Is:
//
//	if errors.Is(err, extracthtml.CodeNoMatch) { ... }
type Code string

func (c Code) Error() string { return string(c) }

// Extraction codes, reported per field in an Outcome.
const (
	// CodeNoMatch: a single field's selector matched nothing.
	CodeNoMatch Code = "no_match"
	// CodeAmbiguousMatch: a single/optional field's selector matched more than one node.
	CodeAmbiguousMatch Code = "ambiguous_match"
	// CodeMissingAttribute: the requested attribute is absent on the matched node.
	CodeMissingAttribute Code = "missing_attribute"
	// CodeMissingTextNode: the node has fewer text nodes than the requested index.
	CodeMissingTextNode Code = "missing_text_node"
	// CodePatternNotMatched: the capture regex did not match the extracted string.
	CodePatternNotMatched Code = "pattern_not_matched"
	// CodeParseError: the string could not be converted to the declared type.
	CodeParseError Code = "parse_error"
	// CodeRenderError: the matched node could not be rendered to a string.
	CodeRenderError Code = "render_error"
)

// Schema codes, reported by Compile.
const (
	CodeEmptySchema       Code = "empty_schema"
	CodeInvalidField      Code = "invalid_field"
	CodeDuplicateField    Code = "duplicate_field"
	CodeInvalidSelector   Code = "invalid_selector"
	CodeInvalidRegex      Code = "invalid_regex"
	CodeCaptureMismatch   Code = "capture_mismatch"
	CodeCollectorMismatch Code = "collector_mismatch"
	CodeUnknownParser     Code = "unknown_parser"
)

// FieldError describes one failed field value.
type FieldError struct {
	Code     Code   `json:"code"`
	Path     string `json:"path"` // JSON pointer into the result, e.g. /items/2/price
	Field    string `json:"field"`
	Selector string `json:"selector"`
	Raw      string `json:"raw,omitempty"`     // offending extracted string, when there is one
	Type     string `json:"type,omitempty"`    // declared value type for parse errors
	Matches  int    `json:"matches,omitempty"` // match count for cardinality errors
	Message  string `json:"message"`
	Cause    error  `json:"-"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Path, e.Message)
}

func (e *FieldError) Unwrap() error { return e.Cause }

// Is reports whether target is e's Code.
func (e *FieldError) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

// FieldErrors is every field failure from one extraction call.
type FieldErrors []FieldError

// Error summarizes the first few errors.
func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return ""
	}
	const maxShown = 3
	var b strings.Builder
	lim := min(len(fe), maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s at %s", fe[i].Code, fe[i].Path)
	}
	if len(fe) > lim {
		fmt.Fprintf(&b, "; ... (total %d)", len(fe))
	}
	return b.String()
}

// Unwrap exposes each FieldError to errors.Is and errors.As.
func (fe FieldErrors) Unwrap() []error {
	out := make([]error, len(fe))
	for i := range fe {
		out[i] = &fe[i]
	}
	return out
}

// Has reports whether any error carries code.
func (fe FieldErrors) Has(code Code) bool {
	for i := range fe {
		if fe[i].Code == code {
			return true
		}
	}
	return false
}

// AsFieldErrors extracts FieldErrors from err.
func AsFieldErrors(err error) (FieldErrors, bool) {
	if err == nil {
		return nil, false
	}
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// SchemaError is returned by Compile. Compilation stops at the first defect.
type SchemaError struct {
	Code    Code
	Path    string // schema path of the offending field, e.g. /items/price
	Message string
	Cause   error
}

func (e *SchemaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("schema: %s at %s: %s: %v", e.Code, e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("schema: %s at %s: %s", e.Code, e.Path, e.Message)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

func (e *SchemaError) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

func schemaErrorf(code Code, path string, cause error, format string, a ...any) *SchemaError {
	return &SchemaError{Code: code, Path: path, Message: fmt.Sprintf(format, a...), Cause: cause}
}
