package extracthtml

import (
	"errors"
	"testing"
)

func TestParseValue_BuiltIns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		kind    Kind
		want    any
		wantErr bool
	}{
		{"hello", KindString, "hello", false},
		{"", KindString, "", false},
		{"-42", KindInt, int64(-42), false},
		{"42", KindUint, uint64(42), false},
		{"-1", KindUint, nil, true},
		{"3.25", KindFloat, 3.25, false},
		{"true", KindBool, true, false},
		{"0", KindBool, false, false},
		{"yes", KindBool, nil, true},
		{"1,000", KindInt, nil, true},
		{"", KindInt, nil, true},
		{"x", KindAny, nil, true},
	}
	for _, tc := range tests {
		got, fe := parseValue(tc.raw, tc.kind, nil, "")
		if (fe != nil) != tc.wantErr {
			t.Errorf("parseValue(%q, %s) error = %v, wantErr %v", tc.raw, tc.kind, fe, tc.wantErr)
			continue
		}
		if fe != nil {
			if fe.Code != CodeParseError || fe.Raw != tc.raw || fe.Type != tc.kind.String() {
				t.Errorf("parseValue(%q, %s) fe = %+v", tc.raw, tc.kind, fe)
			}
			continue
		}
		if got != tc.want {
			t.Errorf("parseValue(%q, %s) = %#v, want %#v", tc.raw, tc.kind, got, tc.want)
		}
	}
}

func TestParseValue_CustomParserReplacesBuiltIn(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	called := ""
	ok := func(raw string) (any, error) { called = raw; return len(raw), nil }
	bad := func(string) (any, error) { return nil, boom }

	// Custom parser wins even where the built-in would fail.
	v, fe := parseValue("abc", KindInt, ok, "len")
	if fe != nil || v != 3 || called != "abc" {
		t.Fatalf("v=%#v fe=%+v called=%q", v, fe, called)
	}

	_, fe = parseValue("1", KindInt, bad, "bad")
	if fe == nil || !errors.Is(fe, boom) || !errors.Is(fe, CodeParseError) {
		t.Fatalf("fe = %+v", fe)
	}
}
