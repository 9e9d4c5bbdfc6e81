package parsers

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	reVarA      = regexp.MustCompile(`\bvar\s+a\s*=\s*'([^']*)'`)
	reClassAttr = regexp.MustCompile(`\bclass\s*=\s*"([^"]+)"`)
	reEmail     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// DecodeEmailFromScript recovers an e-mail address from a script of the form
//
//	var a='...'; ... <span class="email eyJ...">
//
// without executing it. The candidate is the HTML-unescaped value of var a.
// Base64 JSON tokens in email-ish class attributes carry directives, applied
// in this order:
//
//	{"rmv":"<substr>"}  remove injected substrings
//	{"h":"m"}           real 'h' was written as 'm'
//	{"rot":"it"}        the whole string is ROT13
//
// A leading mailto: is stripped. The result must look like an address;
// otherwise DecodeEmailFromScript returns "".
func DecodeEmailFromScript(script string) string {
	m := reVarA.FindStringSubmatch(script)
	if len(m) != 2 {
		return ""
	}

	email := strings.TrimSpace(html.UnescapeString(m[1]))
	email = strings.TrimPrefix(email, "mailto:")

	dirs := scanDirectives(script)
	for _, rm := range dirs.removals {
		email = strings.ReplaceAll(email, rm, "")
	}
	if len(dirs.obfToReal) > 0 {
		email = strings.Map(func(r rune) rune {
			if rr, ok := dirs.obfToReal[r]; ok {
				return rr
			}
			return r
		}, email)
	}
	if dirs.rot13 {
		email = rot13(email)
	}

	// ROT13 hides "mailto:" until after decoding.
	email = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(email), "mailto:"))
	if reEmail.MatchString(email) {
		return email
	}
	return ""
}

type directives struct {
	rot13     bool
	removals  []string
	obfToReal map[rune]rune
}

// scanDirectives only looks at class attributes containing "email" or
// "required"; unrelated Base64-looking CSS classes are ignored.
func scanDirectives(script string) directives {
	out := directives{obfToReal: map[rune]rune{}}

	for _, ca := range reClassAttr.FindAllStringSubmatch(script, -1) {
		classVal := ca[1]
		if !strings.Contains(classVal, "email") && !strings.Contains(classVal, "required") {
			continue
		}

		for _, tok := range strings.Fields(classVal) {
			if len(tok) < 8 || len(tok) > 80 {
				continue
			}
			obj, ok := decodeToken(tok)
			if !ok {
				continue
			}

			for k, v := range obj {
				switch k {
				case "rot":
					if v == "it" {
						out.rot13 = true
					}
				case "rmv":
					if v != "" {
						out.removals = append(out.removals, v)
					}
				default:
					kr, vr := []rune(k), []rune(v)
					if len(kr) == 1 && len(vr) == 1 {
						out.obfToReal[vr[0]] = kr[0]
					}
				}
			}
		}
	}
	return out
}

// decodeToken decodes a standard or URL-safe Base64 JSON object of strings.
func decodeToken(token string) (map[string]string, bool) {
	if pad := len(token) % 4; pad != 0 {
		token += strings.Repeat("=", 4-pad)
	}
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		if b, err = base64.URLEncoding.DecodeString(token); err != nil {
			return nil, false
		}
	}

	var obj map[string]string
	if err := json.Unmarshal(b, &obj); err != nil || len(obj) == 0 {
		return nil, false
	}
	return obj, true
}

func rot13(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		}
		return r
	}, s)
}
