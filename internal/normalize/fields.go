package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
)

// fields is a payload object with key lookup that tolerates camelCase,
// kebab-case and upper-case spellings of the canonical snake_case names.
type fields struct {
	raw   map[string]any
	snake map[string]any
}

func newFields(raw map[string]any) fields {
	f := fields{raw: raw, snake: make(map[string]any, len(raw))}
	for k, v := range raw {
		key := strcase.ToSnake(k)
		if _, dup := f.snake[key]; !dup {
			f.snake[key] = v
		}
	}
	return f
}

// lookup returns the value of the first name present. Exact keys win over
// canonicalized ones.
func (f fields) lookup(names ...string) (any, bool) {
	for _, name := range names {
		if v, ok := f.raw[name]; ok && v != nil {
			return v, true
		}
		if v, ok := f.snake[strcase.ToSnake(name)]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// object returns the first named value that is a JSON object.
func (f fields) object(names ...string) (map[string]any, bool) {
	for _, name := range names {
		v, ok := f.lookup(name)
		if !ok {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

// number returns the first named value that coerces to a finite number.
func (f fields) number(names ...string) (float64, bool) {
	for _, name := range names {
		v, ok := f.lookup(name)
		if !ok {
			continue
		}
		if n, ok := NumOrNull(v); ok {
			return n, true
		}
	}
	return 0, false
}

// text returns the first named value that is a non-blank string or a number.
func (f fields) text(names ...string) (string, bool) {
	for _, name := range names {
		v, ok := f.lookup(name)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s, true
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case json.Number:
			return t.String(), true
		}
	}
	return "", false
}

// NumOrNull coerces v to a finite float64. Strings are stripped of everything
// except digits, sign, decimal point and exponent marker before parsing, so
// noisy device strings such as "12.3cm" parse. It never panics.
func NumOrNull(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '+' || r == '-' || r == '.' || r == 'e' || r == 'E' {
				return r
			}
			return -1
		}, n)
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "1" || s == "true"
	default:
		n, ok := NumOrNull(v)
		return ok && n == 1
	}
}

func ptr[T any](v T) *T {
	return &v
}
