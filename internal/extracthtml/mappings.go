package extracthtml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// LoadSchemaFile reads a schema document from path.
//
// The format follows the extension: .yaml/.yml is YAML, .json is JSON.
// Anything else is tried as YAML first, then JSON. Unknown keys are rejected
// in both formats so a misspelled option never silently drops a field.
func LoadSchemaFile(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}

	var s *Schema
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		s, err = decodeSchemaYAML(b)
	case ".json":
		s, err = decodeSchemaJSON(b)
	default:
		s, err = decodeSchemaYAML(b)
		if err != nil {
			var jerr error
			if s, jerr = decodeSchemaJSON(b); jerr != nil {
				err = errors.Join(err, jerr)
			} else {
				err = nil
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("%s: schema has no fields", path)
	}
	return s, nil
}

// ParseSchema decodes a schema from memory. format is "yaml" or "json".
func ParseSchema(b []byte, format string) (*Schema, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return decodeSchemaYAML(b)
	case "json":
		return decodeSchemaJSON(b)
	default:
		return nil, fmt.Errorf("unknown schema format %q", format)
	}
}

func decodeSchemaJSON(b []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var s Schema
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse schema json: %w", err)
	}
	return &s, nil
}

func decodeSchemaYAML(b []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var s Schema
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parse schema yaml: document is empty")
		}
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	return &s, nil
}
