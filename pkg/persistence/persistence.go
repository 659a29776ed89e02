// Package persistence provides the storage abstraction for templates and executions.
package persistence

import (
	"context"

	"github.com/taskhive/flowengine/pkg/models"
)

type TemplateRepository interface {
	Save(ctx context.Context, template *models.Template) error
	GetByID(ctx context.Context, id string) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)
	Delete(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListByTemplate(ctx context.Context, templateID string) ([]*models.Execution, error)
	ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error)
	Delete(ctx context.Context, id string) error
}

type Persistence interface {
	TemplateRepository() TemplateRepository
	ExecutionRepository() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
