package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/persistence"
)

// ExecutionRepository stores executions as <root>/executions/<id>.json.
type ExecutionRepository struct {
	root string
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return path.Join(er.root, "executions")
}

func (er *ExecutionRepository) filePath(id string) string {
	return path.Join(er.dir(), filepath.Base(id)+".json")
}

func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	if err := os.MkdirAll(er.dir(), 0o755); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	if err := os.WriteFile(er.filePath(execution.ID), data, 0o644); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	data, err := os.ReadFile(er.filePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) ListByTemplate(ctx context.Context, templateID string) ([]*models.Execution, error) {
	return er.list(ctx, func(execution *models.Execution) bool {
		return execution.TemplateID == templateID
	})
}

func (er *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	return er.list(ctx, func(execution *models.Execution) bool {
		return execution.Status == status
	})
}

func (er *ExecutionRepository) list(ctx context.Context, keep func(*models.Execution) bool) ([]*models.Execution, error) {
	root := os.DirFS(er.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.Execution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := file[:len(file)-len(".json")]

		execution, err := er.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if keep(execution) {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		left, right := executions[i].StartTime, executions[j].StartTime
		if left == nil || right == nil {
			return executions[i].ID < executions[j].ID
		}

		return left.After(*right)
	})

	return executions, nil
}

func (er *ExecutionRepository) Delete(_ context.Context, id string) error {
	err := os.Remove(er.filePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewExecutionError("Delete", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return persistence.NewExecutionError("Delete", id, err)
	}

	return nil
}
