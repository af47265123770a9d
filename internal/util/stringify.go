package util

import (
	"encoding/json"
	"fmt"
)

// Stringify renders a tool result for a conversation history. Strings pass
// through verbatim, byte slices are decoded as text, everything else is JSON
// encoded with a fmt fallback.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(b)
}

// StringArg returns args[key] as a string when present and of string type.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringSliceArg accepts []string or []any of strings.
func StringSliceArg(args map[string]any, key string) ([]string, bool) {
	switch v := args[key].(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
