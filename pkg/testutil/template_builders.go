// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/taskhive/flowengine/pkg/models"
)

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:     uuid.New().String(),
		Type:   models.NodeTypeTask,
		Name:   "Test Node",
		Config: map[string]any{"title": "Test task"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// CreateTestTemplate creates a valid template with default values that can be
// overridden.
func CreateTestTemplate(overrides ...func(*models.Template)) *models.Template {
	template := &models.Template{
		ID:          uuid.New().String(),
		Name:        "Test Template",
		Description: "A template for tests",
		Owner:       "tester",
		Nodes: []*models.Node{
			{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
			{ID: "end", Type: models.NodeTypeEnd, Name: "End"},
		},
		Connections: []*models.Connection{
			{Source: "start", Target: "end"},
		},
	}

	for _, override := range overrides {
		override(template)
	}

	return template
}

// LinearTemplate builds a start -> nodes... -> end chain. Handy for driving
// the engine through a known path.
func LinearTemplate(nodes ...*models.Node) *models.Template {
	template := &models.Template{
		ID:    uuid.New().String(),
		Name:  "Linear Template",
		Owner: "tester",
		Nodes: []*models.Node{
			{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		},
	}

	previous := "start"

	for _, node := range nodes {
		template.Nodes = append(template.Nodes, node)
		template.Connections = append(template.Connections, &models.Connection{
			Source: previous,
			Target: node.ID,
		})
		previous = node.ID
	}

	template.Nodes = append(template.Nodes, &models.Node{ID: "end", Type: models.NodeTypeEnd, Name: "End"})
	template.Connections = append(template.Connections, &models.Connection{
		Source: previous,
		Target: "end",
	})

	return template
}

// CreateTestExecution creates a pending execution for the given template.
func CreateTestExecution(template *models.Template, overrides ...func(*models.Execution)) *models.Execution {
	execution := &models.Execution{
		ID:          uuid.New().String(),
		TemplateID:  template.ID,
		TriggeredBy: "tester",
		Status:      models.ExecutionStatusPending,
		Variables:   map[string]any{},
		Context: map[string]any{
			"template_id":   template.ID,
			"template_name": template.Name,
			"triggered_by":  "tester",
		},
	}

	for _, override := range overrides {
		override(execution)
	}

	return execution
}
