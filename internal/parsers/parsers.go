// Package parsers holds the named custom parsers shipped with extract-html.
//
// Schemas refer to them by name ("parser": "digits"); the command compiles
// every schema with Builtin().
package parsers

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"htmlextract/internal/extracthtml"
)

var reDigitGroups = regexp.MustCompile(`\d+`)

// Builtin returns a fresh registry of the built-in parsers. Callers may add
// their own entries to the returned map.
func Builtin() extracthtml.Parsers {
	return extracthtml.Parsers{
		"digits":    Digits,
		"thousands": Thousands,
		"js_email":  JSEmail,
		"nfc":       NFC,
		"lower":     Lower,
		"title":     Title,
		"rfc3339":   RFC3339,
	}
}

// Digits joins every digit group in s into one integer, so counts such as
// "(1 096 items)" become 1096.
func Digits(s string) (any, error) {
	parts := reDigitGroups.FindAllString(s, -1)
	if len(parts) == 0 {
		return nil, fmt.Errorf("no digits in %q", s)
	}
	n, err := strconv.ParseInt(strings.Join(parts, ""), 10, 64)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Thousands parses an integer written with group separators, e.g.
// "1,000,000,000" or "1 000_000". A leading sign is allowed.
func Thousands(s string) (any, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ',', '_', ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if clean == "" {
		return nil, errors.New("empty number")
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// JSEmail decodes an obfuscated e-mail address from an inline script. It
// fails when no plausible address can be recovered.
func JSEmail(s string) (any, error) {
	email := DecodeEmailFromScript(s)
	if email == "" {
		return nil, errors.New("no e-mail address found in script")
	}
	return email, nil
}

// NFC returns s in Unicode normalization form C.
func NFC(s string) (any, error) {
	return norm.NFC.String(s), nil
}

// Lower maps s to lower case using Unicode case rules.
func Lower(s string) (any, error) {
	return cases.Lower(language.Und).String(s), nil
}

// Title maps s to title case. A Caser is stateful, so one is built per call.
func Title(s string) (any, error) {
	return cases.Title(language.Und).String(s), nil
}

// RFC3339 parses an RFC 3339 timestamp.
func RFC3339(s string) (any, error) {
	return time.Parse(time.RFC3339, s)
}
