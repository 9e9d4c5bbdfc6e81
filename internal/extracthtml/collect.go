package extracthtml

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// collect enforces the field's cardinality policy on its matches.
//
// The returned selection keeps document order. For CollectOptional a zero
// length result means "absent", which is not an error.
func collect(matches *goquery.Selection, policy Collector) (*goquery.Selection, *FieldError) {
	n := matches.Length()
	switch policy {
	case CollectSingle:
		if n == 0 {
			return nil, &FieldError{Code: CodeNoMatch, Message: "no element matched the selector"}
		}
		if n > 1 {
			return nil, ambiguous(n)
		}
	case CollectOptional:
		if n > 1 {
			return nil, ambiguous(n)
		}
	case CollectAll:
	}
	return matches, nil
}

func ambiguous(n int) *FieldError {
	return &FieldError{
		Code:    CodeAmbiguousMatch,
		Matches: n,
		Message: fmt.Sprintf("selector matched %d elements, expected at most one", n),
	}
}
