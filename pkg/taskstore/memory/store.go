// Package memory provides an in-memory task store for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/taskhive/flowengine/pkg/protocol"
)

type Store struct {
	mu    sync.Mutex
	tasks map[string]protocol.TaskInput
	order []string
}

func NewStore() *Store {
	return &Store{
		tasks: make(map[string]protocol.TaskInput),
	}
}

func (s *Store) Create(_ context.Context, input protocol.TaskInput) (protocol.TaskRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.tasks[id] = input
	s.order = append(s.order, id)

	return protocol.TaskRef{ID: id, Title: input.Title}, nil
}

// Tasks returns the created tasks in creation order.
func (s *Store) Tasks() []protocol.TaskInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.TaskInput, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}

	return out
}
