package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/taskhive/flowengine/pkg/persistence"
	"github.com/taskhive/flowengine/pkg/persistence/file"
	"github.com/taskhive/flowengine/pkg/persistence/postgresql"
)

// NewPersistence creates a storage backend selected by the URL scheme:
// postgres:// URLs get the SQL backend, anything else is treated as a
// filesystem root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		root := strings.TrimPrefix(databaseURL, "file://")

		return file.NewPersistence(root), nil
	}
}
