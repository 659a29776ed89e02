// Package email provides the node that dispatches a notification to a
// recipient on the configured channels.
package email

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
		logger:     logger.With("module", "email_node"),
	}
}

func (p *Processor) Type() models.NodeType {
	return models.NodeTypeEmail
}

func (p *Processor) Process(ctx context.Context, execution *models.Execution, node *models.Node) (*protocol.Result, error) {
	config := node.Config

	recipient, _ := config["recipient"].(string)
	recipient = template.Resolve(recipient, execution.Variables, execution.Context)

	subject, _ := config["subject"].(string)
	subject = template.Resolve(subject, execution.Variables, execution.Context)

	body, _ := config["body"].(string)
	body = template.Resolve(body, execution.Variables, execution.Context)

	channels := []string{"email"}
	if raw, ok := config["channels"].([]any); ok {
		channels = channels[:0]
		for _, c := range raw {
			if s, ok := c.(string); ok {
				channels = append(channels, s)
			}
		}
	}

	// Fire-and-forget: the node never awaits delivery confirmation and a
	// dispatch error does not fail the step.
	err := p.dispatcher.Send(ctx, protocol.Notification{
		Recipient: recipient,
		Sender:    execution.TriggeredBy,
		Kind:      "workflow_email",
		Title:     subject,
		Message:   body,
		Channels:  channels,
		Data: map[string]any{
			"execution_id": execution.ID,
			"node_id":      node.ID,
		},
	})
	if err != nil {
		p.logger.Warn("Notification dispatch failed", "recipient", recipient, "error", err)
	}

	return &protocol.Result{
		Output: map[string]any{
			"recipient": recipient,
			"subject":   subject,
			"channels":  channels,
		},
	}, nil
}

// Schema constrains email node configs at template save time.
func Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"recipient"},
		"properties": map[string]any{
			"recipient": map[string]any{"type": "string", "minLength": 1},
			"subject":   map[string]any{"type": "string"},
			"body":      map[string]any{"type": "string"},
			"channels":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}
