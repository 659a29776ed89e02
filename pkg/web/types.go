// Package web provides HTTP request and response types for the template and execution API.
package web

import "github.com/taskhive/flowengine/pkg/models"

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateTemplateRequest represents the request body for creating a new template.
type CreateTemplateRequest struct {
	Name        string               `json:"name"        validate:"required,min=3"`
	Description string               `json:"description"`
	Nodes       []*models.Node       `json:"nodes"       validate:"required,min=1,dive"`
	Connections []*models.Connection `json:"connections" validate:"dive"`
	Variables   map[string]any       `json:"variables"`
	Owner       string               `json:"owner"       validate:"required"`
}

// CreateExecutionRequest represents the request body for instantiating a template.
type CreateExecutionRequest struct {
	TriggeredBy string         `json:"triggered_by" validate:"required"`
	Variables   map[string]any `json:"variables"`
	Start       bool           `json:"start"`
}

// ApprovalRequest represents the request body for deciding an approval step.
type ApprovalRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Decision   string `json:"decision"    validate:"required,oneof=approved rejected"`
	Comment    string `json:"comment,omitempty"`
}

func (r CreateTemplateRequest) toModel() *models.Template {
	return &models.Template{
		Name:        r.Name,
		Description: r.Description,
		Nodes:       r.Nodes,
		Connections: r.Connections,
		Variables:   r.Variables,
		Owner:       r.Owner,
	}
}
