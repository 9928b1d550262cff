package recommend

import (
	"regexp"
	"strconv"
	"strings"
)

var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::([^{}]*))?\}`)

// Values maps placeholder names to float64, int, or string values.
type Values map[string]any

// Interpolate replaces {name} and {name:.Nf} placeholders with values. Placeholders with
// no value are left as they are.
func Interpolate(text string, values Values) string {
	return placeholderRE.ReplaceAllStringFunc(text, func(m string) string {
		sub := placeholderRE.FindStringSubmatch(m)
		v, ok := values[sub[1]]
		if !ok {
			return m
		}
		return format(v, sub[2])
	})
}

func format(v any, spec string) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x, spec)
	case int:
		if spec != "" {
			return formatFloat(float64(x), spec)
		}
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return ""
	}
}

// formatFloat understands the ".Nf" and "d" specs and falls back to the shortest
// representation.
func formatFloat(v float64, spec string) string {
	switch {
	case spec == "d":
		return strconv.FormatFloat(v, 'f', 0, 64)
	case strings.HasPrefix(spec, ".") && strings.HasSuffix(spec, "f"):
		if prec, err := strconv.Atoi(spec[1 : len(spec)-1]); err == nil && prec >= 0 {
			return strconv.FormatFloat(v, 'f', prec, 64)
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
