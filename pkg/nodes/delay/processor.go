// Package delay provides the node that suspends one execution for a
// configured duration without blocking other executions.
package delay

import (
	"context"
	"time"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
)

type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) Type() models.NodeType {
	return models.NodeTypeDelay
}

// Process waits for config.duration milliseconds. Only this execution's
// runner goroutine waits; the concurrency slot of other executions is
// unaffected. Cancellation interrupts the wait.
func (p *Processor) Process(ctx context.Context, _ *models.Execution, node *models.Node) (*protocol.Result, error) {
	duration := durationMs(node.Config)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &protocol.Result{
		Output: map[string]any{
			"waited_ms": duration.Milliseconds(),
		},
	}, nil
}

func durationMs(config map[string]any) time.Duration {
	switch v := config["duration"].(type) {
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	default:
		return 0
	}
}

// Schema constrains delay node configs at template save time.
func Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"duration"},
		"properties": map[string]any{
			"duration": map[string]any{"type": "number", "minimum": 0},
		},
	}
}
