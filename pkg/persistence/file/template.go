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

// TemplateRepository stores templates as <root>/templates/<id>.json.
type TemplateRepository struct {
	root string
}

func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

func (tr *TemplateRepository) dir() string {
	return path.Join(tr.root, "templates")
}

func (tr *TemplateRepository) filePath(id string) string {
	return path.Join(tr.dir(), filepath.Base(id)+".json")
}

func (tr *TemplateRepository) Save(_ context.Context, template *models.Template) error {
	if err := os.MkdirAll(tr.dir(), 0o755); err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	if err := os.WriteFile(tr.filePath(template.ID), data, 0o644); err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

func (tr *TemplateRepository) GetByID(_ context.Context, id string) (*models.Template, error) {
	data, err := os.ReadFile(tr.filePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	var template models.Template
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return &template, nil
}

func (tr *TemplateRepository) List(ctx context.Context) ([]*models.Template, error) {
	root := os.DirFS(tr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	templates := make([]*models.Template, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := file[:len(file)-len(".json")]

		template, err := tr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	return templates, nil
}

func (tr *TemplateRepository) Delete(_ context.Context, id string) error {
	err := os.Remove(tr.filePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	return nil
}
