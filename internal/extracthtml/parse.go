package extracthtml

import (
	"fmt"
	"strconv"
)

// ParserFunc converts an extracted string into a value. It replaces the
// built-in conversion for fields that name it.
type ParserFunc func(raw string) (any, error)

// Parsers is a registry of custom parsers, keyed by the name used in schemas.
type Parsers map[string]ParserFunc

// parseValue converts raw into a value of kind k. A non-nil custom parser is
// used exclusively.
func parseValue(raw string, k Kind, custom ParserFunc, customName string) (any, *FieldError) {
	if custom != nil {
		v, err := custom(raw)
		if err != nil {
			return nil, &FieldError{
				Code:    CodeParseError,
				Raw:     raw,
				Type:    k.String(),
				Message: fmt.Sprintf("parser %q rejected %q", customName, raw),
				Cause:   err,
			}
		}
		return v, nil
	}

	var (
		v   any
		err error
	)
	switch k {
	case KindString:
		return raw, nil
	case KindInt:
		v, err = strconv.ParseInt(raw, 10, 64)
	case KindUint:
		v, err = strconv.ParseUint(raw, 10, 64)
	case KindFloat:
		v, err = strconv.ParseFloat(raw, 64)
	case KindBool:
		v, err = strconv.ParseBool(raw)
	default:
		err = fmt.Errorf("no built-in parser for %s", k)
	}
	if err != nil {
		return nil, &FieldError{
			Code:    CodeParseError,
			Raw:     raw,
			Type:    k.String(),
			Message: fmt.Sprintf("cannot parse %q as %s", raw, k),
			Cause:   err,
		}
	}
	return v, nil
}
