package extracthtml

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// extractTarget converts one matched node into its raw string per t.mode.
//
// Text and inner markup are trimmed so document formatting never leaks into
// values. Attribute values are returned as-is; a missing attribute is an
// error, never an empty string.
func extractTarget(node *goquery.Selection, t target) (string, *FieldError) {
	switch t.mode {
	case TargetText:
		return strings.TrimSpace(node.Text()), nil

	case TargetAttribute:
		v, ok := node.Attr(t.attr)
		if !ok {
			return "", &FieldError{
				Code:    CodeMissingAttribute,
				Message: fmt.Sprintf("attribute %q not found on <%s>", t.attr, goquery.NodeName(node)),
			}
		}
		return v, nil

	case TargetInnerMarkup:
		inner, err := node.Html()
		if err != nil {
			return "", &FieldError{Code: CodeRenderError, Message: "render inner html", Cause: err}
		}
		return strings.TrimSpace(inner), nil

	case TargetOuterMarkup:
		outer, err := goquery.OuterHtml(node)
		if err != nil {
			return "", &FieldError{Code: CodeRenderError, Message: "render outer html", Cause: err}
		}
		return outer, nil

	case TargetTextNode:
		s, ok := nthTextNode(node, t.nth)
		if !ok {
			return "", &FieldError{
				Code:    CodeMissingTextNode,
				Message: fmt.Sprintf("text node %d not found", t.nth),
			}
		}
		return strings.TrimSpace(s), nil

	default:
		// Presence and element targets never reach string extraction.
		return "", &FieldError{Code: CodeRenderError, Message: fmt.Sprintf("target %s has no string form", t.mode)}
	}
}

// nthTextNode returns the data of the n-th descendant text node of the
// selection's first node, in document order.
func nthTextNode(sel *goquery.Selection, n int) (string, bool) {
	if sel.Length() == 0 {
		return "", false
	}
	seen := 0
	var found string
	var ok bool
	var walk func(*html.Node) bool
	walk = func(cur *html.Node) bool {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				if seen == n {
					found, ok = c.Data, true
					return true
				}
				seen++
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(sel.Nodes[0])
	return found, ok
}
