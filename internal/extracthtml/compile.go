package extracthtml

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog"
)

// CompileOptions configures Compile.
type CompileOptions struct {
	// Parsers resolves FieldSpec.Parser and SubField.Parser names.
	Parsers Parsers

	// Logger receives debug output about the compiled plan. Nil disables it.
	Logger *zerolog.Logger
}

// Compile validates s and builds the reusable extraction plan.
//
// Validation stops at the first defect and returns it as a *SchemaError
// naming the field path; a partially compiled schema is never returned.
// Selectors and regexes are compiled here, once, and shared by every
// subsequent extraction.
func Compile(s *Schema, opts CompileOptions) (*Compiled, error) {
	if s == nil {
		return nil, schemaErrorf(CodeEmptySchema, "/", nil, "schema is nil")
	}

	b := &compiler{
		c:       &Compiled{name: s.Name},
		parsers: opts.Parsers,
	}
	if _, err := b.level(s.Fields, ""); err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		opts.Logger.Debug().
			Str("schema", s.Name).
			Int("fields", len(b.c.plans)).
			Int("levels", len(b.c.levels)).
			Msg("schema compiled")
	}
	return b.c, nil
}

// MustCompile is like Compile but panics on error. Intended for schemas
// declared in Go source.
func MustCompile(s *Schema, opts CompileOptions) *Compiled {
	c, err := Compile(s, opts)
	if err != nil {
		panic(err)
	}
	return c
}

type compiler struct {
	c       *Compiled
	parsers Parsers
}

// level compiles one schema object and returns its index in c.levels.
func (b *compiler) level(fields []FieldSpec, path string) (int, *SchemaError) {
	if len(fields) == 0 {
		return 0, schemaErrorf(CodeEmptySchema, pathOrRoot(path), nil, "no fields declared")
	}

	idx := len(b.c.levels)
	b.c.levels = append(b.c.levels, level{})

	seen := make(map[string]bool, len(fields))
	ids := make([]int, 0, len(fields))
	for i := range fields {
		f := &fields[i]
		fp := path + "/" + strings.TrimSpace(f.Name)
		if strings.TrimSpace(f.Name) == "" {
			fp = fmt.Sprintf("%s/%d", path, i)
		}

		p, err := b.field(f, fp)
		if err != nil {
			return 0, err
		}

		for _, name := range p.outputNames() {
			if seen[name] {
				return 0, schemaErrorf(CodeDuplicateField, fp, nil, "field name %q is already used at this level", name)
			}
			seen[name] = true
		}

		b.c.plans = append(b.c.plans, p)
		ids = append(ids, len(b.c.plans)-1)
	}
	b.c.levels[idx].fields = ids
	return idx, nil
}

func (b *compiler) field(f *FieldSpec, path string) (fieldPlan, *SchemaError) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return fieldPlan{}, schemaErrorf(CodeInvalidField, path, nil, "field name is empty")
	}
	p := fieldPlan{name: name, selector: f.Selector, child: -1, inline: f.Inline}

	mode, ok := ParseTargetMode(f.Target)
	if !ok {
		return p, schemaErrorf(CodeInvalidField, path, nil, "unknown target %q", f.Target)
	}
	if strings.TrimSpace(f.Target) == "" && len(f.Fields) > 0 {
		mode = TargetElement
	}
	p.target = target{mode: mode, attr: f.Attr, nth: f.Index}

	coll, ok := ParseCollector(f.Collector)
	if !ok {
		return p, schemaErrorf(CodeInvalidField, path, nil, "unknown collector %q", f.Collector)
	}
	p.collector = coll

	if strings.TrimSpace(f.Selector) == "" {
		return p, schemaErrorf(CodeInvalidSelector, path, nil, "selector is empty")
	}
	m, err := cascadia.Compile(f.Selector)
	if err != nil {
		return p, schemaErrorf(CodeInvalidSelector, path, err, "cannot parse selector %q", f.Selector)
	}
	p.matcher = m

	vt, serr := resolveType(f, mode, coll, path)
	if serr != nil {
		return p, serr
	}
	p.vtype = vt

	if coll == CollectAll && !vt.Seq {
		return p, schemaErrorf(CodeCollectorMismatch, path, nil, "collector collect requires a sequence type, got %s", vt)
	}
	if coll != CollectAll && vt.Seq {
		return p, schemaErrorf(CodeCollectorMismatch, path, nil, "collector %s requires a non-sequence type, got %s", coll, vt)
	}

	if err := checkTarget(f, mode, vt, path); err != nil {
		return p, err
	}

	if f.Capture != "" || len(f.Captures) > 0 || vt.Kind == KindTuple || f.Inline {
		if err := b.capture(&p, f, path); err != nil {
			return p, err
		}
	}

	if f.Parser != "" {
		if !vt.Kind.Scalar() {
			return p, schemaErrorf(CodeInvalidField, path, nil, "parser cannot be used with type %s", vt)
		}
		fn, ok := b.parsers[f.Parser]
		if !ok {
			return p, schemaErrorf(CodeUnknownParser, path, nil, "parser %q is not registered", f.Parser)
		}
		p.parserName, p.parser = f.Parser, fn
	} else if vt.Kind == KindAny {
		return p, schemaErrorf(CodeInvalidField, path, nil, "type any requires a parser")
	}

	if mode == TargetElement {
		child, lerr := b.level(f.Fields, path)
		if lerr != nil {
			return p, lerr
		}
		p.child = child
	}
	return p, nil
}

// resolveType parses the declared type, or infers it from the field's shape
// when none is given.
func resolveType(f *FieldSpec, mode TargetMode, coll Collector, path string) (ValueType, *SchemaError) {
	if s := strings.TrimSpace(f.Type); s != "" {
		vt, ok := ParseValueType(s)
		if !ok {
			return vt, schemaErrorf(CodeInvalidField, path, nil, "unknown type %q", f.Type)
		}
		return vt, nil
	}

	vt := ValueType{Kind: KindString, Seq: coll == CollectAll}
	switch {
	case mode == TargetPresence:
		vt = ValueType{Kind: KindBool}
	case f.Capture != "":
		vt.Kind = KindTuple
	case mode == TargetElement:
		vt.Kind = KindObject
	}
	return vt, nil
}

// checkTarget rejects target/type combinations that cannot be evaluated.
func checkTarget(f *FieldSpec, mode TargetMode, vt ValueType, path string) *SchemaError {
	if len(f.Fields) > 0 && mode != TargetElement {
		return schemaErrorf(CodeInvalidField, path, nil, "nested fields require target elem, got %s", mode)
	}

	switch mode {
	case TargetPresence:
		if f.Capture != "" || f.Parser != "" || len(f.Captures) > 0 || f.Inline {
			return schemaErrorf(CodeInvalidField, path, nil, "presence target cannot be combined with capture or parser")
		}
		if strings.TrimSpace(f.Collector) != "" && strings.TrimSpace(f.Collector) != "single" {
			return schemaErrorf(CodeInvalidField, path, nil, "presence target cannot use collector %s", f.Collector)
		}
		if vt.Kind != KindBool {
			return schemaErrorf(CodeInvalidField, path, nil, "presence target yields bool, not %s", vt)
		}

	case TargetElement:
		if f.Capture != "" || len(f.Captures) > 0 {
			return schemaErrorf(CodeInvalidField, path, nil, "elem target cannot be combined with capture")
		}
		if len(f.Fields) == 0 {
			return schemaErrorf(CodeInvalidField, path, nil, "elem target requires nested fields")
		}
		if vt.Kind != KindObject {
			return schemaErrorf(CodeInvalidField, path, nil, "elem target yields object, not %s", vt)
		}

	case TargetAttribute:
		if strings.TrimSpace(f.Attr) == "" {
			return schemaErrorf(CodeInvalidField, path, nil, "attr target requires an attribute name")
		}

	case TargetTextNode:
		if f.Index < 0 {
			return schemaErrorf(CodeInvalidField, path, nil, "text_node index must not be negative, got %d", f.Index)
		}
	}

	if vt.Kind == KindObject && mode != TargetElement {
		return schemaErrorf(CodeInvalidField, path, nil, "type %s requires nested fields", vt)
	}
	return nil
}

// capture compiles the regex and the sub-field plans of a tuple field.
func (b *compiler) capture(p *fieldPlan, f *FieldSpec, path string) *SchemaError {
	switch {
	case f.Capture == "":
		return schemaErrorf(CodeInvalidField, path, nil, "type %s and captures require a capture pattern", p.vtype)
	case p.vtype.Kind != KindTuple:
		return schemaErrorf(CodeInvalidField, path, nil, "capture yields tuple, not %s", p.vtype)
	case f.Parser != "":
		return schemaErrorf(CodeInvalidField, path, nil, "capture fields take parsers per sub-field")
	case f.Inline && p.collector == CollectAll:
		return schemaErrorf(CodeInvalidField, path, nil, "inline captures cannot be collected")
	}

	re, err := regexp.Compile(f.Capture)
	if err != nil {
		return schemaErrorf(CodeInvalidRegex, path, err, "cannot compile capture pattern %q", f.Capture)
	}

	names := make([]string, len(f.Captures))
	seen := make(map[string]bool, len(f.Captures))
	for i, sf := range f.Captures {
		name := strings.TrimSpace(sf.Name)
		if name == "" {
			return schemaErrorf(CodeInvalidField, fmt.Sprintf("%s/%d", path, i), nil, "sub-field name is empty")
		}
		if seen[name] {
			return schemaErrorf(CodeDuplicateField, path+"/"+name, nil, "sub-field name %q is already used", name)
		}
		seen[name] = true
		names[i] = name
	}

	groups, err := alignGroups(re, names)
	if err != nil {
		return schemaErrorf(CodeCaptureMismatch, path, nil, "%v", err)
	}

	p.capture = re
	p.groups = groups
	p.subs = make([]subPlan, len(f.Captures))
	for i, sf := range f.Captures {
		sp := subPlan{name: names[i], vtype: ValueType{Kind: KindString}}
		subPath := path + "/" + names[i]
		if s := strings.TrimSpace(sf.Type); s != "" {
			vt, ok := ParseValueType(s)
			if !ok {
				return schemaErrorf(CodeInvalidField, subPath, nil, "unknown type %q", sf.Type)
			}
			if vt.Seq || !vt.Kind.Scalar() {
				return schemaErrorf(CodeInvalidField, subPath, nil, "sub-field type must be scalar, got %s", vt)
			}
			sp.vtype = vt
		}
		if sf.Parser != "" {
			fn, ok := b.parsers[sf.Parser]
			if !ok {
				return schemaErrorf(CodeUnknownParser, subPath, nil, "parser %q is not registered", sf.Parser)
			}
			sp.parserName, sp.parser = sf.Parser, fn
		} else if sp.vtype.Kind == KindAny {
			return schemaErrorf(CodeInvalidField, subPath, nil, "type any requires a parser")
		}
		p.subs[i] = sp
	}
	return nil
}

// outputNames lists the record keys this field writes.
func (p *fieldPlan) outputNames() []string {
	if !p.inline {
		return []string{p.name}
	}
	out := make([]string, len(p.subs))
	for i := range p.subs {
		out[i] = p.subs[i].name
	}
	return out
}

func pathOrRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
