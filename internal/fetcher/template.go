package fetcher

import (
	"strconv"
	"strings"
)

// Vars are the only values a request template may reference.
type Vars struct {
	Fiat         string
	Side         string
	EndpointSide string
	Page         int
}

func (v Vars) lookup(name string) (string, bool) {
	switch name {
	case "fiat":
		return v.Fiat, true
	case "side":
		return v.Side, true
	case "endpoint_side":
		return v.EndpointSide, true
	case "page":
		return strconv.Itoa(v.Page), true
	}
	return "", false
}

// BuildBody substitutes {fiat}, {side}, {endpoint_side} and {page} in every string of
// template, recursing into lists and objects. The template is not modified.
func BuildBody(template map[string]any, vars Vars) map[string]any {
	out, _ := substitute(template, vars).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func substitute(value any, vars Vars) any {
	switch v := value.(type) {
	case string:
		return expand(v, vars)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = substitute(item, vars)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = substitute(item, vars)
		}
		return out
	default:
		return value
	}
}

// expand resolves placeholders in s. Braces are escaped by doubling them. A string with
// an unknown placeholder or unbalanced braces is returned unchanged.
func expand(s string, vars Vars) string {
	if !strings.ContainsAny(s, "{}") {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return s
			}
			val, ok := vars.lookup(s[i+1 : i+1+end])
			if !ok {
				return s
			}
			b.WriteString(val)
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return s
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
