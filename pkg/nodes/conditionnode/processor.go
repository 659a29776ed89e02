// Package conditionnode provides the node that evaluates a boolean expression
// so downstream connections can branch on the result.
package conditionnode

import (
	"context"

	"github.com/taskhive/flowengine/pkg/condition"
	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
)

type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) Type() models.NodeType {
	return models.NodeTypeCondition
}

// Process evaluates the configured expression. The boolean lands in the
// result context under "result", so guarded connections out of this node can
// test it.
func (p *Processor) Process(_ context.Context, execution *models.Execution, node *models.Node) (*protocol.Result, error) {
	expr, _ := node.Config["condition"].(string)

	result := condition.Evaluate(expr, execution.Variables, execution.Context)

	return &protocol.Result{
		Output: map[string]any{
			"condition": expr,
			"result":    result,
		},
	}, nil
}

// Schema constrains condition node configs at template save time.
func Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"condition"},
		"properties": map[string]any{
			"condition": map[string]any{"type": "string", "minLength": 1},
		},
	}
}
