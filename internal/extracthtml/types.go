package extracthtml

import "strings"

// Schema is an ordered list of field specifications, as authored in a schema
// file. Compile it once and reuse the result.
type Schema struct {
	Name   string      `json:"name,omitempty" yaml:"name,omitempty"`
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// FieldSpec describes how one named value is extracted.
type FieldSpec struct {
	Name     string `json:"name" yaml:"name"`
	Selector string `json:"selector" yaml:"selector"` // evaluated relative to the enclosing root

	// Target is one of text (default), attr, inner_html, outer_html,
	// text_node, presence or elem.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Attr   string `json:"attr,omitempty" yaml:"attr,omitempty"`   // used when Target == "attr"
	Index  int    `json:"index,omitempty" yaml:"index,omitempty"` // used when Target == "text_node"

	// Capture is an optional regex applied to the extracted string. Each
	// capture group feeds the sub-field at the same position (or with the
	// same name, when every group is named).
	Capture  string     `json:"capture,omitempty" yaml:"capture,omitempty"`
	Captures []SubField `json:"captures,omitempty" yaml:"captures,omitempty"`
	// Inline spreads captured sub-fields into the enclosing record instead
	// of nesting them under Name.
	Inline bool `json:"inline,omitempty" yaml:"inline,omitempty"`

	Collector string `json:"collector,omitempty" yaml:"collector,omitempty"` // single (default), optional, collect
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`           // e.g. int, []int, object, []tuple
	Parser    string `json:"parser,omitempty" yaml:"parser,omitempty"`       // registered custom parser name

	Fields []FieldSpec `json:"fields,omitempty" yaml:"fields,omitempty"` // nested schema
}

// SubField is one element of a capture tuple.
type SubField struct {
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
	Parser string `json:"parser,omitempty" yaml:"parser,omitempty"`
}

// TargetMode selects which string representation is taken from a node.
type TargetMode uint8

const (
	TargetText TargetMode = iota
	TargetAttribute
	TargetInnerMarkup
	TargetOuterMarkup
	TargetTextNode
	TargetPresence
	TargetElement
)

var targetNames = map[string]TargetMode{
	"":           TargetText,
	"text":       TargetText,
	"attr":       TargetAttribute,
	"inner_html": TargetInnerMarkup,
	"outer_html": TargetOuterMarkup,
	"text_node":  TargetTextNode,
	"presence":   TargetPresence,
	"elem":       TargetElement,
}

// ParseTargetMode maps a schema target name to its mode.
func ParseTargetMode(s string) (TargetMode, bool) {
	m, ok := targetNames[strings.TrimSpace(s)]
	return m, ok
}

func (m TargetMode) String() string {
	switch m {
	case TargetText:
		return "text"
	case TargetAttribute:
		return "attr"
	case TargetInnerMarkup:
		return "inner_html"
	case TargetOuterMarkup:
		return "outer_html"
	case TargetTextNode:
		return "text_node"
	case TargetPresence:
		return "presence"
	case TargetElement:
		return "elem"
	default:
		return "unknown"
	}
}

// Collector is the cardinality contract for a field's matches.
type Collector uint8

const (
	CollectSingle Collector = iota
	CollectOptional
	CollectAll
)

// ParseCollector maps a schema collector name to its policy.
func ParseCollector(s string) (Collector, bool) {
	switch strings.TrimSpace(s) {
	case "", "single":
		return CollectSingle, true
	case "optional":
		return CollectOptional, true
	case "collect":
		return CollectAll, true
	default:
		return 0, false
	}
}

func (c Collector) String() string {
	switch c {
	case CollectSingle:
		return "single"
	case CollectOptional:
		return "optional"
	case CollectAll:
		return "collect"
	default:
		return "unknown"
	}
}

// Kind is the element kind of a value type.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBool
	KindAny
	KindObject
	KindTuple
)

var kindNames = [...]string{
	KindString: "string",
	KindInt:    "int",
	KindUint:   "uint",
	KindFloat:  "float",
	KindBool:   "bool",
	KindAny:    "any",
	KindObject: "object",
	KindTuple:  "tuple",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Scalar reports whether values of k come straight out of the value parser.
func (k Kind) Scalar() bool { return k != KindObject && k != KindTuple }

// ValueType is a Kind, optionally wrapped in a sequence.
type ValueType struct {
	Kind Kind
	Seq  bool
}

// ParseValueType parses names like "int", "[]float" or "object".
func ParseValueType(s string) (ValueType, bool) {
	s = strings.TrimSpace(s)
	var vt ValueType
	if rest, ok := strings.CutPrefix(s, "[]"); ok {
		vt.Seq = true
		s = rest
	}
	for k, name := range kindNames {
		if name == s {
			vt.Kind = Kind(k)
			return vt, true
		}
	}
	return ValueType{}, false
}

func (vt ValueType) String() string {
	if vt.Seq {
		return "[]" + vt.Kind.String()
	}
	return vt.Kind.String()
}
