package extracthtml

import (
	"errors"
	"strings"
	"testing"
)

// mustSchema parses a YAML schema literal or fails the test.
func mustSchema(t *testing.T, src string) *Schema {
	t.Helper()
	s, err := ParseSchema([]byte(src), "yaml")
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	return s
}

func mustCompile(t *testing.T, src string, opts CompileOptions) *Compiled {
	t.Helper()
	c, err := Compile(mustSchema(t, src), opts)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return c
}

func TestCompile_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		schema   string
		wantCode Code
		wantPath string
	}{
		{
			name:     "no fields",
			schema:   "name: empty\nfields: []",
			wantCode: CodeEmptySchema,
			wantPath: "/",
		},
		{
			name:     "empty field name",
			schema:   "fields: [{name: '', selector: p}]",
			wantCode: CodeInvalidField,
			wantPath: "/0",
		},
		{
			name:     "duplicate name",
			schema:   "fields: [{name: a, selector: p}, {name: a, selector: div}]",
			wantCode: CodeDuplicateField,
			wantPath: "/a",
		},
		{
			name:     "empty selector",
			schema:   "fields: [{name: a, selector: ' '}]",
			wantCode: CodeInvalidSelector,
			wantPath: "/a",
		},
		{
			name:     "unparseable selector",
			schema:   "fields: [{name: a, selector: 'div['}]",
			wantCode: CodeInvalidSelector,
			wantPath: "/a",
		},
		{
			name:     "unparseable regex",
			schema:   "fields: [{name: a, selector: p, capture: '(', captures: [{name: x}]}]",
			wantCode: CodeInvalidRegex,
			wantPath: "/a",
		},
		{
			name:     "too few sub-fields for groups",
			schema:   "fields: [{name: a, selector: p, capture: '(a)(b)', captures: [{name: x}]}]",
			wantCode: CodeCaptureMismatch,
			wantPath: "/a",
		},
		{
			name:     "two groups three sub-fields",
			schema:   "fields: [{name: a, selector: p, capture: '(\\d+)-(\\d+)', captures: [{name: x}, {name: y}, {name: z}]}]",
			wantCode: CodeCaptureMismatch,
			wantPath: "/a",
		},
		{
			name:     "named group without matching sub-field",
			schema:   "fields: [{name: a, selector: p, capture: '(?P<x>\\d+)-(?P<y>\\d+)', captures: [{name: x}, {name: z}]}]",
			wantCode: CodeCaptureMismatch,
			wantPath: "/a",
		},
		{
			name:     "mixed named and unnamed groups",
			schema:   "fields: [{name: a, selector: p, capture: '(?P<x>\\d+)-(\\d+)', captures: [{name: x}, {name: y}]}]",
			wantCode: CodeCaptureMismatch,
			wantPath: "/a",
		},
		{
			name:     "collect with scalar type",
			schema:   "fields: [{name: a, selector: li, collector: collect, type: int}]",
			wantCode: CodeCollectorMismatch,
			wantPath: "/a",
		},
		{
			name:     "single with sequence type",
			schema:   "fields: [{name: a, selector: li, type: '[]int'}]",
			wantCode: CodeCollectorMismatch,
			wantPath: "/a",
		},
		{
			name:     "unknown parser",
			schema:   "fields: [{name: a, selector: p, parser: nope}]",
			wantCode: CodeUnknownParser,
			wantPath: "/a",
		},
		{
			name:     "unknown sub-field parser",
			schema:   "fields: [{name: a, selector: p, capture: '(.*)', captures: [{name: x, parser: nope}]}]",
			wantCode: CodeUnknownParser,
			wantPath: "/a/x",
		},
		{
			name:     "unknown target",
			schema:   "fields: [{name: a, selector: p, target: pixels}]",
			wantCode: CodeInvalidField,
			wantPath: "/a",
		},
		{
			name:     "unknown type",
			schema:   "fields: [{name: a, selector: p, type: decimal}]",
			wantCode: CodeInvalidField,
			wantPath: "/a",
		},
		{
			name:     "attr without name",
			schema:   "fields: [{name: a, selector: a, target: attr}]",
			wantCode: CodeInvalidField,
			wantPath: "/a",
		},
		{
			name:     "any without parser",
			schema:   "fields: [{name: a, selector: p, type: any}]",
			wantCode: CodeInvalidField,
			wantPath: "/a",
		},
		{
			name:     "presence with collector",
			schema:   "fields: [{name: a, selector: p, target: presence, collector: collect, type: '[]bool'}]",
			wantCode: CodeInvalidField,
			wantPath: "/a",
		},
		{
			name:     "elem without fields",
			schema:   "fields: [{name: a, selector: p, target: elem}]",
			wantCode: CodeInvalidField,
			wantPath: "/a",
		},
		{
			name:     "nested fields on text target",
			schema:   "fields: [{name: a, selector: p, target: text, fields: [{name: b, selector: b}]}]",
			wantCode: CodeInvalidField,
			wantPath: "/a",
		},
		{
			name:     "inline collected",
			schema:   "fields: [{name: a, selector: p, collector: collect, type: '[]tuple', inline: true, capture: '(.*)', captures: [{name: x}]}]",
			wantCode: CodeInvalidField,
			wantPath: "/a",
		},
		{
			name:     "inline sub-field collides with sibling",
			schema:   "fields: [{name: x, selector: h1}, {name: a, selector: p, inline: true, capture: '(.*)', captures: [{name: x}]}]",
			wantCode: CodeDuplicateField,
			wantPath: "/a",
		},
		{
			name:     "defect inside nested level",
			schema:   "fields: [{name: items, selector: li, collector: collect, fields: [{name: price, selector: 'b[', type: int}]}]",
			wantCode: CodeInvalidSelector,
			wantPath: "/items/price",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, err := Compile(mustSchema(t, tc.schema), CompileOptions{})
			if err == nil {
				t.Fatalf("Compile succeeded, want %s", tc.wantCode)
			}
			if c != nil {
				t.Fatalf("partial compiled schema returned alongside error")
			}
			if !errors.Is(err, tc.wantCode) {
				t.Fatalf("err = %v, want code %s", err, tc.wantCode)
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("err is %T, want *SchemaError", err)
			}
			if se.Path != tc.wantPath {
				t.Fatalf("path = %q, want %q", se.Path, tc.wantPath)
			}
		})
	}
}

func TestCompile_NilSchema(t *testing.T) {
	t.Parallel()

	_, err := Compile(nil, CompileOptions{})
	if !errors.Is(err, CodeEmptySchema) {
		t.Fatalf("err = %v, want %s", err, CodeEmptySchema)
	}
}

func TestCompile_InvalidSelectorKeepsCause(t *testing.T) {
	t.Parallel()

	_, err := Compile(mustSchema(t, "fields: [{name: a, selector: 'div['}]"), CompileOptions{})
	var se *SchemaError
	if !errors.As(err, &se) || se.Cause == nil {
		t.Fatalf("expected selector parse cause, got %#v", err)
	}
	if !strings.Contains(err.Error(), "div[") {
		t.Fatalf("error should name the selector: %v", err)
	}
}

func TestCompile_InfersTypes(t *testing.T) {
	t.Parallel()

	c := mustCompile(t, `
name: inferred
fields:
  - {name: title, selector: h1}
  - {name: tags, selector: li, collector: collect}
  - {name: flag, selector: .x, target: presence}
  - {name: pair, selector: p, capture: '(\w+)=(\w+)', captures: [{name: k}, {name: v}]}
  - name: card
    selector: .card
    fields:
      - {name: body, selector: p}
`, CompileOptions{})

	want := map[string]ValueType{
		"title": {Kind: KindString},
		"tags":  {Kind: KindString, Seq: true},
		"flag":  {Kind: KindBool},
		"pair":  {Kind: KindTuple},
		"card":  {Kind: KindObject},
	}
	for _, idx := range c.levels[0].fields {
		p := c.plans[idx]
		if p.vtype != want[p.name] {
			t.Errorf("%s: type = %s, want %s", p.name, p.vtype, want[p.name])
		}
	}
	if got := strings.Join(c.Fields(), ","); got != "title,tags,flag,pair,card" {
		t.Fatalf("Fields() = %s", got)
	}
	if c.Name() != "inferred" {
		t.Fatalf("Name() = %q", c.Name())
	}
}

func TestMustCompile_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("MustCompile did not panic")
		}
	}()
	MustCompile(&Schema{}, CompileOptions{})
}

func TestParseValueType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want ValueType
		ok   bool
	}{
		{"int", ValueType{Kind: KindInt}, true},
		{"[]float", ValueType{Kind: KindFloat, Seq: true}, true},
		{" object ", ValueType{Kind: KindObject}, true},
		{"[]tuple", ValueType{Kind: KindTuple, Seq: true}, true},
		{"[][]int", ValueType{}, false},
		{"decimal", ValueType{}, false},
	}
	for _, tc := range tests {
		got, ok := ParseValueType(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseValueType(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
