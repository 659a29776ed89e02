package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
	"github.com/taskhive/flowengine/pkg/taskstore/memory"
)

func TestProcess_CreatesResolvedTask(t *testing.T) {
	store := memory.NewStore()
	processor := NewProcessor(store)

	execution := &models.Execution{
		ID:          "exec-1",
		TriggeredBy: "bob",
		Variables:   map[string]any{"assignee": "Ann", "proj": "onboarding"},
	}
	node := &models.Node{
		ID:   "create-task",
		Type: models.NodeTypeTask,
		Config: map[string]any{
			"title":       "Task for {{assignee}}",
			"description": "Part of {{proj}}",
			"priority":    "high",
			"assigned_to": "{{assignee}}",
			"tags":        []any{"{{proj}}", "auto"},
		},
	}

	result, err := processor.Process(context.Background(), execution, node)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "Task for Ann", result.Output["title"])
	assert.NotEmpty(t, result.Output["task_id"])

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Task for Ann", tasks[0].Title)
	assert.Equal(t, "Part of onboarding", tasks[0].Description)
	assert.Equal(t, "high", tasks[0].Priority)
	assert.Equal(t, "Ann", tasks[0].AssignedTo)
	assert.Equal(t, "bob", tasks[0].AssignedBy)
	assert.Equal(t, []string{"onboarding", "auto"}, tasks[0].Tags)
}

func TestProcess_DefaultsAssigneeToTriggeringActor(t *testing.T) {
	store := memory.NewStore()
	processor := NewProcessor(store)

	execution := &models.Execution{ID: "exec-1", TriggeredBy: "bob"}
	node := &models.Node{
		ID:     "create-task",
		Type:   models.NodeTypeTask,
		Config: map[string]any{"title": "Review"},
	}

	_, err := processor.Process(context.Background(), execution, node)
	require.NoError(t, err)

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "bob", tasks[0].AssignedTo)
}

type failingStore struct{}

func (failingStore) Create(context.Context, protocol.TaskInput) (protocol.TaskRef, error) {
	return protocol.TaskRef{}, errors.New("store unavailable")
}

func TestProcess_PropagatesStoreError(t *testing.T) {
	processor := NewProcessor(failingStore{})

	execution := &models.Execution{ID: "exec-1", TriggeredBy: "bob"}
	node := &models.Node{ID: "n", Type: models.NodeTypeTask, Config: map[string]any{"title": "x"}}

	_, err := processor.Process(context.Background(), execution, node)
	require.Error(t, err)
}
