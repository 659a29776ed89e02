// Package start provides the entry-marker node of every workflow graph.
package start

import (
	"context"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
)

// Processor is a pure marker: it surfaces the execution's variables and
// context as output and always succeeds.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) Type() models.NodeType {
	return models.NodeTypeStart
}

func (p *Processor) Process(_ context.Context, execution *models.Execution, _ *models.Node) (*protocol.Result, error) {
	return &protocol.Result{
		Output: map[string]any{
			"variables": execution.Variables,
			"context":   execution.Context,
		},
	}, nil
}
