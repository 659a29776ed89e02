// Package condition evaluates the minimal boolean expressions that guard
// workflow connections and condition nodes.
package condition

import (
	"strconv"
	"strings"

	"github.com/taskhive/flowengine/pkg/template"
)

// Evaluate resolves variables in expr, then parses the result as
// "<left> <op> <right>" with op one of ==, !=, > and <. Equality operators
// compare as strings; ordering operators parse both sides numerically.
//
// An expression that does not match the 3-token shape evaluates to true
// (fail-open: a malformed condition must not dead-end a workflow). A numeric
// parse failure on an ordering operator evaluates to false (fail-closed: it
// signals a data problem, not an accepted alternate format).
func Evaluate(expr string, variables, context map[string]any) bool {
	resolved := template.Resolve(expr, variables, context)

	tokens := strings.Fields(resolved)
	if len(tokens) != 3 {
		return true
	}

	left, op, right := tokens[0], tokens[1], tokens[2]

	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	case ">", "<":
		leftNum, err := strconv.ParseFloat(left, 64)
		if err != nil {
			return false
		}

		rightNum, err := strconv.ParseFloat(right, 64)
		if err != nil {
			return false
		}

		if op == ">" {
			return leftNum > rightNum
		}

		return leftNum < rightNum
	default:
		return true
	}
}
