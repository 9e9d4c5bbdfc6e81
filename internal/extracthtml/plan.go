package extracthtml

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// Compiled is a validated schema ready for extraction.
//
// Fields live in a flat arena (plans); a level lists the plan indices of one
// schema object in declaration order, and a nested field points at its child
// level by index. A Compiled value is never mutated after Compile returns and
// may be shared by any number of goroutines.
type Compiled struct {
	name   string
	plans  []fieldPlan
	levels []level // levels[0] is the root
}

type level struct {
	fields []int
}

// fieldPlan is the precompiled stage chain for one field:
// selector -> collector -> target -> capture -> parser.
type fieldPlan struct {
	name     string
	selector string
	matcher  goquery.Matcher

	target target

	capture *regexp.Regexp
	groups  []int // capture group index per sub-field
	subs    []subPlan
	inline  bool

	collector Collector
	vtype     ValueType

	parserName string
	parser     ParserFunc

	child int // index into Compiled.levels, -1 when the field is not nested
}

// target is the target mode plus its parameters.
type target struct {
	mode TargetMode
	attr string
	nth  int
}

type subPlan struct {
	name       string
	vtype      ValueType
	parserName string
	parser     ParserFunc
}

// Name returns the schema name, if one was given.
func (c *Compiled) Name() string { return c.name }

// Fields returns the top-level field names in declaration order.
func (c *Compiled) Fields() []string {
	root := c.levels[0]
	out := make([]string, 0, len(root.fields))
	for _, idx := range root.fields {
		out = append(out, c.plans[idx].name)
	}
	return out
}
