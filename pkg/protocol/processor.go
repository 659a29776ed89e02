// Package protocol defines the contracts between the engine, node processors
// and the external collaborators they call.
package protocol

import (
	"context"

	"github.com/taskhive/flowengine/pkg/models"
)

// Result is what a node processor hands back to the engine on success.
type Result struct {
	// Output is merged into the step state and exposed to downstream
	// connections through the result context.
	Output map[string]any

	// Suspended reports that the node parked the execution instead of
	// completing (approval nodes). The engine must not advance past a
	// suspended node until an external decision arrives.
	Suspended bool

	// Completed reports that the node terminates the workflow (end nodes).
	// The engine marks the execution completed and stops traversal.
	Completed bool
}

// NodeProcessor executes one node type. Implementations must be safe for
// concurrent use: the same processor instance serves every execution.
type NodeProcessor interface {
	// Type returns the node type this processor handles.
	Type() models.NodeType

	// Process runs the node against the execution. The execution is owned by
	// the calling runner; processors may read variables/context and record
	// step-local data but must not touch lifecycle fields other than through
	// the returned Result.
	Process(ctx context.Context, execution *models.Execution, node *models.Node) (*Result, error)
}
