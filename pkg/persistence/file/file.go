// Package file provides file-based persistence for templates and executions.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/taskhive/flowengine/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
// Each aggregate is one JSON file under <root>/templates or <root>/executions.
type Persistence struct {
	root          string
	templateRepo  *TemplateRepository
	executionRepo *ExecutionRepository
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		templateRepo:  NewTemplateRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
	}
}

func (fp *Persistence) TemplateRepository() persistence.TemplateRepository {
	return fp.templateRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to clean up for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
