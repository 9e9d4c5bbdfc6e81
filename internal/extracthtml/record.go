package extracthtml

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// Record is an ordered field name to value mapping. Keys keep schema order,
// so a Record always marshals to the same JSON bytes.
type Record struct {
	keys []string
	vals map[string]any
}

func newRecord(capacity int) *Record {
	return &Record{
		keys: make([]string, 0, capacity),
		vals: make(map[string]any, capacity),
	}
}

func (r *Record) set(name string, v any) {
	if _, ok := r.vals[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.vals[name] = v
}

// Get returns the value stored under name.
func (r *Record) Get(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.vals[name]
	return v, ok
}

// Keys returns field names in schema order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Map converts the record, and any nested records, to plain maps.
func (r *Record) Map() map[string]any {
	if r == nil {
		return nil
	}
	out := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		out[k] = plain(r.vals[k])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Record:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = plain(t[i])
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes the record as a JSON object in key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := MarshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalNoEscape(r.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalNoEscape encodes v as JSON without escaping <, > and &, including
// inside nested Records and values held as any. The result has no trailing
// newline.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
