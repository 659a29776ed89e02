package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/persistence"
	"github.com/taskhive/flowengine/pkg/registry"
)

// ErrTemplateNotFound is returned when a template is not found.
var ErrTemplateNotFound = persistence.ErrTemplateNotFound

// Template manages the template catalog: graph validation, node config
// validation against the registered processor schemas, and storage.
type Template struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewTemplate creates a new template service.
func NewTemplate(persistence persistence.Persistence, registry *registry.Registry) *Template {
	return &Template{
		persistence: persistence,
		registry:    registry,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and stores a new template.
func (s *Template) Create(ctx context.Context, template *models.Template) (*models.Template, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	if template.Name == "" {
		return nil, ErrTemplateNameRequired
	}

	if len(template.Nodes) == 0 {
		return nil, ErrNodesRequired
	}

	if err := s.validate(template); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	template.ID = uuid.New().String()
	template.CreatedAt = now
	template.UpdatedAt = now

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return template, nil
}

// Update replaces an existing template, keeping its identity and creation time.
func (s *Template) Update(ctx context.Context, templateID string, template *models.Template) (*models.Template, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	existing, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if err := s.validate(template); err != nil {
		return nil, err
	}

	template.ID = templateID
	template.CreatedAt = existing.CreatedAt
	template.UpdatedAt = time.Now().UTC()

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return template, nil
}

// FetchByID retrieves a template by its ID.
func (s *Template) FetchByID(ctx context.Context, id string) (*models.Template, error) {
	return s.persistence.TemplateRepository().GetByID(ctx, id)
}

// List retrieves all templates.
func (s *Template) List(ctx context.Context) ([]*models.Template, error) {
	return s.persistence.TemplateRepository().List(ctx)
}

// Delete removes a template by its ID.
func (s *Template) Delete(ctx context.Context, templateID string) error {
	if _, err := s.persistence.TemplateRepository().GetByID(ctx, templateID); err != nil {
		return err
	}

	if err := s.persistence.TemplateRepository().Delete(ctx, templateID); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return nil
}

// validate checks the graph invariants and each node's config against the
// schema its processor registered.
func (s *Template) validate(template *models.Template) error {
	if err := template.Validate(); err != nil {
		return NewValidationError("validate", "INVALID_GRAPH", err.Error(), ErrInvalidRequest)
	}

	if s.registry == nil {
		return nil
	}

	for _, node := range template.Nodes {
		if err := s.registry.ValidateNodeConfig(node.Type, node.Config); err != nil {
			return NewValidationError(
				"validate",
				"INVALID_NODE_CONFIG",
				fmt.Sprintf("node %s: %v", node.ID, err),
				ErrInvalidNodeConfig,
			)
		}
	}

	return nil
}
