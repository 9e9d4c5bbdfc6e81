package extracthtml

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	json "github.com/goccy/go-json"
)

// Outcome is the result of one extraction call.
//
// Values holds every field that succeeded, in schema order. Errors holds every
// field that failed, across all nesting levels. An Outcome is complete when
// returned and is not modified afterwards.
type Outcome struct {
	Values *Record      `json:"values"`
	Errors FieldErrors `json:"errors,omitempty"`
}

// OK reports whether every field at every level succeeded.
func (o *Outcome) OK() bool { return len(o.Errors) == 0 }

// Err returns nil on success, otherwise the FieldErrors collection.
func (o *Outcome) Err() error {
	if o.OK() {
		return nil
	}
	return o.Errors
}

// ExtractString parses html and extracts c from the document root.
//
// The error is non-nil only when the document cannot be parsed; field
// failures are reported in the Outcome.
func (c *Compiled) ExtractString(html string) (*Outcome, error) {
	return c.ExtractReader(strings.NewReader(html))
}

// ExtractReader parses an HTML document from r and extracts c from its root.
func (c *Compiled) ExtractReader(r io.Reader) (*Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return c.ExtractDocument(doc), nil
}

// ExtractDocument extracts c from a parsed document.
func (c *Compiled) ExtractDocument(doc *goquery.Document) *Outcome {
	return c.Extract(doc.Selection)
}

// Extract evaluates every field of c against root. Selectors only see
// descendants of root.
func (c *Compiled) Extract(root *goquery.Selection) *Outcome {
	r := runner{c: c}
	values := r.level(root, 0, "")
	return &Outcome{Values: values, Errors: r.errs}
}

// ExtractInto parses html, extracts c, and decodes the values into T using
// T's JSON field tags. It fails unless every field succeeded.
func ExtractInto[T any](c *Compiled, html string) (T, error) {
	var zero T
	out, err := c.ExtractString(html)
	if err != nil {
		return zero, err
	}
	if err := out.Err(); err != nil {
		return zero, err
	}
	b, err := json.Marshal(out.Values)
	if err != nil {
		return zero, fmt.Errorf("encode values: %w", err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return zero, fmt.Errorf("decode values into %T: %w", v, err)
	}
	return v, nil
}

// runner carries the error list of one Extract call.
type runner struct {
	c    *Compiled
	errs FieldErrors
}

// level evaluates every field of one schema object against root. A failing
// field never stops its siblings.
func (r *runner) level(root *goquery.Selection, idx int, path string) *Record {
	lv := r.c.levels[idx]
	rec := newRecord(len(lv.fields))
	for _, pi := range lv.fields {
		r.field(root, &r.c.plans[pi], path, rec)
	}
	return rec
}

func (r *runner) field(root *goquery.Selection, p *fieldPlan, path string, rec *Record) {
	fpath := path + "/" + p.name
	matches := root.FindMatcher(p.matcher)

	if p.target.mode == TargetPresence {
		rec.set(p.name, matches.Length() > 0)
		return
	}

	nodes, fe := collect(matches, p.collector)
	if fe != nil {
		r.fail(p, fpath, fe)
		return
	}

	switch p.collector {
	case CollectSingle:
		if v, ok := r.value(nodes.Eq(0), p, fpath); ok {
			r.store(p, rec, v)
		}

	case CollectOptional:
		if nodes.Length() == 0 {
			r.store(p, rec, nil)
			return
		}
		if v, ok := r.value(nodes.Eq(0), p, fpath); ok {
			r.store(p, rec, v)
		}

	case CollectAll:
		items := make([]any, 0, nodes.Length())
		failed := false
		for i := range nodes.Nodes {
			v, ok := r.value(nodes.Eq(i), p, fpath+"/"+strconv.Itoa(i))
			if !ok {
				failed = true
				continue
			}
			items = append(items, v)
		}
		if !failed {
			rec.set(p.name, items)
		}
	}
}

// value runs target -> capture -> parser on one node, or recurses into the
// child level for nested fields.
func (r *runner) value(node *goquery.Selection, p *fieldPlan, path string) (any, bool) {
	if p.child >= 0 {
		before := len(r.errs)
		sub := r.level(node, p.child, path)
		return sub, len(r.errs) == before
	}

	raw, fe := extractTarget(node, p.target)
	if fe != nil {
		r.fail(p, path, fe)
		return nil, false
	}

	if p.capture == nil {
		v, fe := parseValue(raw, p.vtype.Kind, p.parser, p.parserName)
		if fe != nil {
			r.fail(p, path, fe)
			return nil, false
		}
		return v, true
	}

	parts, fe := captureGroups(raw, p.capture, p.groups)
	if fe != nil {
		r.fail(p, path, fe)
		return nil, false
	}

	tuple := newRecord(len(p.subs))
	for i := range p.subs {
		sp := &p.subs[i]
		v, fe := parseValue(parts[i], sp.vtype.Kind, sp.parser, sp.parserName)
		if fe != nil {
			r.fail(p, path+"/"+sp.name, fe)
			return nil, false
		}
		tuple.set(sp.name, v)
	}
	return tuple, true
}

// store writes a field value, spreading inline tuples into rec. A nil value
// is the explicit absent marker of an optional field.
func (r *runner) store(p *fieldPlan, rec *Record, v any) {
	if !p.inline {
		rec.set(p.name, v)
		return
	}
	tuple, _ := v.(*Record)
	for i := range p.subs {
		name := p.subs[i].name
		sv, _ := tuple.Get(name)
		rec.set(name, sv)
	}
}

func (r *runner) fail(p *fieldPlan, path string, fe *FieldError) {
	fe.Path = path
	fe.Field = p.name
	fe.Selector = p.selector
	r.errs = append(r.errs, *fe)
}
