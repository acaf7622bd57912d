package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseList parses the body of a list literal (without the outer braces)
// into a slice of float64, string, bool, nil and nested []any values.
//
// A missing closing brace at the end of input is treated as an implicit
// close, and empty fields are skipped.
func ParseList(s string) ([]any, error) {
	_, values, err := parseList(s, 0)
	if err != nil {
		return nil, err
	}
	return values, nil
}

// parseList parses values from start up to the '}' that closes the current
// list, or the end of s. It returns the index of that brace (len(s) at end
// of input) together with the values.
func parseList(s string, start int) (int, []any, error) {
	values := []any{}
	field := start
	quoted := false

	appendField := func(end int) error {
		if field >= end {
			return nil
		}
		tok := strings.TrimSpace(s[field:end])
		if tok == "" {
			return nil
		}
		v, err := parseScalar(tok)
		if err != nil {
			return err
		}
		values = append(values, v)
		return nil
	}

	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == ',':
			if err := appendField(i); err != nil {
				return 0, nil, err
			}
			field = i + 1
		case c == '{':
			end, nested, err := parseList(s, i+1)
			if err != nil {
				return 0, nil, err
			}
			values = append(values, nested)
			i = end
			field = end + 1
		case c == '}':
			if err := appendField(i); err != nil {
				return 0, nil, err
			}
			return i, values, nil
		}
	}

	if err := appendField(len(s)); err != nil {
		return 0, nil, err
	}
	return len(s), values, nil
}

func parseScalar(tok string) (any, error) {
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		return tok[1 : len(tok)-1], nil
	}
	switch tok {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "nil":
		return nil, nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad list value %q", ErrProtocol, tok)
	}
	return f, nil
}
