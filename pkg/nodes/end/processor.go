// Package end provides the terminal node that completes an execution.
package end

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
)

// Processor signals completion to the engine. The completion notification is
// sent before the execution turns terminal, so every side effect precedes the
// completed status.
type Processor struct {
	notifier protocol.NotificationDispatcher
	logger   *slog.Logger
}

func NewProcessor(notifier protocol.NotificationDispatcher, logger *slog.Logger) *Processor {
	return &Processor{
		notifier: notifier,
		logger:   logger.With("module", "end_node"),
	}
}

func (p *Processor) Type() models.NodeType {
	return models.NodeTypeEnd
}

func (p *Processor) Process(ctx context.Context, execution *models.Execution, node *models.Node) (*protocol.Result, error) {
	// Dispatch failures must not prevent the execution from completing.
	err := p.notifier.Send(ctx, protocol.Notification{
		Recipient: execution.TriggeredBy,
		Kind:      "workflow_completed",
		Title:     "Workflow completed",
		Message:   "Workflow execution " + execution.ID + " completed",
		Data: map[string]any{
			"execution_id": execution.ID,
			"template_id":  execution.TemplateID,
		},
	})
	if err != nil {
		p.logger.Warn("Failed to send completion notification", "execution_id", execution.ID, "error", err)
	}

	return &protocol.Result{
		Completed: true,
		Output: map[string]any{
			"completed_at": time.Now().UTC(),
		},
	}, nil
}
