package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// DebugPrintSelector prints every match of selector in html, one per
// paragraph, using mode to render each node. Only the string-producing modes
// text, inner_html and outer_html are supported.
//
// This is used by the command's "-selector" debug mode.
func DebugPrintSelector(w io.Writer, html, selector string, mode TargetMode) error {
	switch mode {
	case TargetText, TargetInnerMarkup, TargetOuterMarkup:
	default:
		return fmt.Errorf("debug mode %s is not supported", mode)
	}

	m, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("selector %q: %w", selector, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	var werr error
	doc.FindMatcher(m).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out, fe := extractTarget(s, target{mode: mode})
		if fe != nil {
			werr = fe
			return false
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", out); err != nil {
			werr = fmt.Errorf("write match: %w", err)
			return false
		}
		return true
	})
	return werr
}
