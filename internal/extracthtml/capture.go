package extracthtml

import (
	"fmt"
	"regexp"
)

// captureGroups applies re once to raw (first match only) and returns the
// group strings at the given group indices, in that order. A group that did
// not take part in the match yields "".
func captureGroups(raw string, re *regexp.Regexp, groups []int) ([]string, *FieldError) {
	loc := re.FindStringSubmatchIndex(raw)
	if loc == nil {
		return nil, &FieldError{
			Code:    CodePatternNotMatched,
			Raw:     raw,
			Message: fmt.Sprintf("pattern %q did not match %q", re.String(), raw),
		}
	}
	out := make([]string, len(groups))
	for i, g := range groups {
		start, end := loc[2*g], loc[2*g+1]
		if start >= 0 {
			out[i] = raw[start:end]
		}
	}
	return out, nil
}

// alignGroups maps declared sub-field names to capture group indices.
//
// With no named groups the mapping is positional. When every group is named,
// each sub-field binds to the group of the same name. Mixing the two styles is
// rejected.
func alignGroups(re *regexp.Regexp, names []string) ([]int, error) {
	n := re.NumSubexp()
	if n != len(names) {
		return nil, fmt.Errorf("pattern has %d capture groups but %d sub-fields are declared", n, len(names))
	}

	named := 0
	for _, gn := range re.SubexpNames()[1:] {
		if gn != "" {
			named++
		}
	}

	groups := make([]int, len(names))
	switch named {
	case 0:
		for i := range names {
			groups[i] = i + 1
		}
	case n:
		for i, name := range names {
			idx := re.SubexpIndex(name)
			if idx < 0 {
				return nil, fmt.Errorf("sub-field %q has no capture group of the same name", name)
			}
			groups[i] = idx
		}
	default:
		return nil, fmt.Errorf("pattern mixes named and unnamed capture groups")
	}
	return groups, nil
}
