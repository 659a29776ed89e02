// Package task provides the node that creates a task record in the platform's
// task store.
package task

import (
	"context"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
	"github.com/taskhive/flowengine/pkg/template"
)

type Processor struct {
	store protocol.TaskStore
}

func NewProcessor(store protocol.TaskStore) *Processor {
	return &Processor{store: store}
}

func (p *Processor) Type() models.NodeType {
	return models.NodeTypeTask
}

func (p *Processor) Process(ctx context.Context, execution *models.Execution, node *models.Node) (*protocol.Result, error) {
	config := node.Config

	input := protocol.TaskInput{
		Title:       resolveConfig(config, "title", execution),
		Description: resolveConfig(config, "description", execution),
		Priority:    resolveConfig(config, "priority", execution),
		Project:     resolveConfig(config, "project", execution),
		AssignedTo:  execution.TriggeredBy,
		AssignedBy:  execution.TriggeredBy,
	}

	if assignee := resolveConfig(config, "assigned_to", execution); assignee != "" {
		input.AssignedTo = assignee
	}

	if tags, ok := config["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				input.Tags = append(input.Tags, template.Resolve(s, execution.Variables, execution.Context))
			}
		}
	}

	ref, err := p.store.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	return &protocol.Result{
		Output: map[string]any{
			"task_id": ref.ID,
			"title":   ref.Title,
		},
	}, nil
}

func resolveConfig(config map[string]any, key string, execution *models.Execution) string {
	raw, _ := config[key].(string)
	if raw == "" {
		return ""
	}

	return template.Resolve(raw, execution.Variables, execution.Context)
}

// Schema constrains task node configs at template save time.
func Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"title"},
		"properties": map[string]any{
			"title":       map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string"},
			"priority":    map[string]any{"type": "string"},
			"project":     map[string]any{"type": "string"},
			"assigned_to": map[string]any{"type": "string"},
			"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}
