// Package template substitutes {{name}} and {{context.name}} tokens in node
// configuration strings against execution variables and invocation context.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

const contextPrefix = "context."

// Resolve substitutes every {{token}} in text. Tokens of the form
// context.<name> resolve against the read-only context map, anything else
// against the variables map. Unresolved tokens pass through verbatim.
// Resolve never fails.
func Resolve(text string, variables, context map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		token := tokenPattern.FindStringSubmatch(match)[1]

		if name, ok := strings.CutPrefix(token, contextPrefix); ok {
			if value, found := context[name]; found {
				return stringify(value)
			}

			return match
		}

		if value, found := variables[token]; found {
			return stringify(value)
		}

		return match
	})
}

// ResolveAny resolves string values and passes every other type through
// untouched, so non-string config entries survive substitution.
func ResolveAny(value any, variables, context map[string]any) any {
	if text, ok := value.(string); ok {
		return Resolve(text, variables, context)
	}

	return value
}

// ResolveMap resolves every string value of a map, one level deep. Nested
// maps and slices pass through untouched.
func ResolveMap(values map[string]any, variables, context map[string]any) map[string]any {
	if values == nil {
		return nil
	}

	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = ResolveAny(value, variables, context)
	}

	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; render integral values without the
		// trailing ".0" so substituted text reads naturally.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}

		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
