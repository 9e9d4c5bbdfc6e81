package parsers

import (
	"encoding/base64"
	"testing"

	json "github.com/goccy/go-json"
)

func TestDecodeEmailFromScript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{
			name:   "no_var_a",
			script: `console.log("no email here");`,
			want:   "",
		},
		{
			name:   "html_unescape",
			script: `var a='me&#64;example.com';`,
			want:   "me@example.com",
		},
		{
			name:   "mailto_prefix",
			script: `var a='mailto:me@example.com';`,
			want:   "me@example.com",
		},
		{
			name:   "removals",
			script: `var a='me+NOISE@example.com'; <span class="email ` + mustB64JSON(t, map[string]string{"rmv": "+NOISE"}) + `"></span>`,
			want:   "me@example.com",
		},
		{
			// {"h":"q"}: real 'h' was written as 'q'; 'q' does not occur elsewhere.
			name:   "substitution",
			script: `var a='qi@example.org'; <i class="emailLink ` + mustB64JSON(t, map[string]string{"h": "q"}) + `"></i>`,
			want:   "hi@example.org",
		},
		{
			// ROT13("znvygb:zr@rknzcyr.pbz") == "mailto:me@example.com"
			name:   "rot13_then_mailto",
			script: `var a='znvygb:zr@rknzcyr.pbz'; <b class="required ` + mustB64JSON(t, map[string]string{"rot": "it"}) + `"></b>`,
			want:   "me@example.com",
		},
		{
			name:   "directive_outside_email_class_ignored",
			script: `var a='mx@example.com'; <div class="btn ` + mustB64JSON(t, map[string]string{"rmv": "x"}) + `"></div>`,
			want:   "mx@example.com",
		},
		{
			name:   "not_an_address",
			script: `var a='not-an-email';`,
			want:   "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := DecodeEmailFromScript(tc.script); got != tc.want {
				t.Fatalf("DecodeEmailFromScript() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeToken_URLSafeUnpadded(t *testing.T) {
	t.Parallel()

	b, _ := json.Marshal(map[string]string{"rot": "it"})
	tok := base64.RawURLEncoding.EncodeToString(b)

	obj, ok := decodeToken(tok)
	if !ok || obj["rot"] != "it" {
		t.Fatalf("decodeToken(%q) = %v, %v", tok, obj, ok)
	}
}

func mustB64JSON(t *testing.T, obj map[string]string) string {
	t.Helper()

	b, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	return base64.StdEncoding.EncodeToString(b)
}
