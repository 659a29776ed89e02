// Package redis provides the Redis-backed task store consumed by task nodes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/taskhive/flowengine/pkg/protocol"
)

const (
	taskKeyPrefix    = "flowengine:tasks:"
	assigneeIndexKey = "flowengine:tasks:by-assignee:"
)

// Store writes task records as Redis hashes and indexes them per assignee.
type Store struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

func NewStore(client goredis.UniversalClient, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With("module", "redis_task_store"),
	}
}

// NewClient builds a redis client from an address like "redis://host:6379/0".
func NewClient(url string) (goredis.UniversalClient, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return goredis.NewClient(opts), nil
}

func (s *Store) Create(ctx context.Context, input protocol.TaskInput) (protocol.TaskRef, error) {
	id := uuid.New().String()

	payload, err := json.Marshal(input)
	if err != nil {
		return protocol.TaskRef{}, fmt.Errorf("failed to encode task: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, taskKeyPrefix+id,
		"id", id,
		"title", input.Title,
		"assigned_to", input.AssignedTo,
		"body", payload,
	)
	pipe.RPush(ctx, assigneeIndexKey+input.AssignedTo, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return protocol.TaskRef{}, fmt.Errorf("failed to store task: %w", err)
	}

	s.logger.Debug("Created task record", "task_id", id, "assigned_to", input.AssignedTo)

	return protocol.TaskRef{ID: id, Title: input.Title}, nil
}
