package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/persistence"
)

// ExecutionRepository stores each execution as a JSONB document keyed by ID.
type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (er *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	body, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	_, err = er.db.ExecContext(ctx, `
		INSERT INTO executions (id, template_id, status, body, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
	`, execution.ID, execution.TemplateID, execution.Status, body, time.Now().UTC())
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	var body []byte

	err := er.db.QueryRowContext(ctx, "SELECT body FROM executions WHERE id = $1", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(body, &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) ListByTemplate(ctx context.Context, templateID string) ([]*models.Execution, error) {
	return er.query(ctx, "SELECT body FROM executions WHERE template_id = $1 ORDER BY updated_at DESC", templateID)
}

func (er *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	return er.query(ctx, "SELECT body FROM executions WHERE status = $1 ORDER BY updated_at DESC", string(status))
}

func (er *ExecutionRepository) query(ctx context.Context, query string, arg any) ([]*models.Execution, error) {
	rows, err := er.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, persistence.NewExecutionError("List", "", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var executions []*models.Execution

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, persistence.NewExecutionError("List", "", err)
		}

		var execution models.Execution
		if err := json.Unmarshal(body, &execution); err != nil {
			return nil, persistence.NewExecutionError("List", "", err)
		}

		executions = append(executions, &execution)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError("List", "", err)
	}

	return executions, nil
}

func (er *ExecutionRepository) Delete(ctx context.Context, id string) error {
	result, err := er.db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", id)
	if err != nil {
		return persistence.NewExecutionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Delete", id, persistence.ErrExecutionNotFound)
	}

	return nil
}
