package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/persistence"
)

// TemplateRepository stores each template as a JSONB document keyed by ID.
type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (tr *TemplateRepository) Save(ctx context.Context, template *models.Template) error {
	body, err := json.Marshal(template)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	_, err = tr.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, owner, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
	`, template.ID, template.Name, template.Owner, body, template.CreatedAt, template.UpdatedAt)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

func (tr *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	var body []byte

	err := tr.db.QueryRowContext(ctx, "SELECT body FROM templates WHERE id = $1", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
	}

	if err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	var template models.Template
	if err := json.Unmarshal(body, &template); err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return &template, nil
}

func (tr *TemplateRepository) List(ctx context.Context) ([]*models.Template, error) {
	rows, err := tr.db.QueryContext(ctx, "SELECT body FROM templates ORDER BY created_at DESC")
	if err != nil {
		return nil, persistence.NewTemplateError("List", "", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var templates []*models.Template

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, persistence.NewTemplateError("List", "", err)
		}

		var template models.Template
		if err := json.Unmarshal(body, &template); err != nil {
			return nil, persistence.NewTemplateError("List", "", err)
		}

		templates = append(templates, &template)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewTemplateError("List", "", err)
	}

	return templates, nil
}

func (tr *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := tr.db.ExecContext(ctx, "DELETE FROM templates WHERE id = $1", id)
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	return nil
}
