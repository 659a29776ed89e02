// Package approval provides the node that parks an execution until a human
// decision arrives through the approval endpoint.
package approval

import (
	"context"
	"log/slog"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
	"github.com/taskhive/flowengine/pkg/template"
)

type Processor struct {
	dispatcher protocol.NotificationDispatcher
	logger     *slog.Logger
}

func NewProcessor(dispatcher protocol.NotificationDispatcher, logger *slog.Logger) *Processor {
	return &Processor{
		dispatcher: dispatcher,
		logger:     logger.With("module", "approval_node"),
	}
}

func (p *Processor) Type() models.NodeType {
	return models.NodeTypeApproval
}

// Process notifies the approver and suspends the step. The engine marks the
// step waiting_approval and does not advance; RecordApprovalResponse is the
// continuation path.
func (p *Processor) Process(ctx context.Context, execution *models.Execution, node *models.Node) (*protocol.Result, error) {
	approver, _ := node.Config["approver"].(string)

	message, _ := node.Config["message"].(string)
	message = template.Resolve(message, execution.Variables, execution.Context)

	err := p.dispatcher.Send(ctx, protocol.Notification{
		Recipient: approver,
		Sender:    execution.TriggeredBy,
		Kind:      "approval_requested",
		Title:     "Approval required",
		Message:   message,
		Data: map[string]any{
			"execution_id": execution.ID,
			"node_id":      node.ID,
		},
	})
	if err != nil {
		p.logger.Warn("Approval notification dispatch failed", "approver", approver, "error", err)
	}

	return &protocol.Result{
		Suspended: true,
		Output: map[string]any{
			"approver": approver,
			"message":  message,
		},
	}, nil
}

// Approver returns the approver configured on an approval node.
func Approver(node *models.Node) string {
	approver, _ := node.Config["approver"].(string)

	return approver
}

// Schema constrains approval node configs at template save time.
func Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"approver"},
		"properties": map[string]any{
			"approver": map[string]any{"type": "string", "minLength": 1},
			"message":  map[string]any{"type": "string"},
		},
	}
}
