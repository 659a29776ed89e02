package cmd

import (
	"log/slog"

	"github.com/taskhive/flowengine/pkg/protocol"
	"github.com/taskhive/flowengine/pkg/taskstore/memory"
	"github.com/taskhive/flowengine/pkg/taskstore/redis"
)

// NewTaskStore returns the redis-backed store when a URL is configured, the
// in-process store otherwise.
func NewTaskStore(redisURL string, logger *slog.Logger) (protocol.TaskStore, error) {
	if redisURL == "" {
		return memory.NewStore(), nil
	}

	client, err := redis.NewClient(redisURL)
	if err != nil {
		return nil, err
	}

	return redis.NewStore(client, logger), nil
}
