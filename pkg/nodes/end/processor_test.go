package end

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/notify"
)

func TestProcess_SignalsCompletionAndNotifies(t *testing.T) {
	dispatcher := notify.NewRecordingDispatcher()
	processor := NewProcessor(dispatcher, slog.Default())

	execution := &models.Execution{
		ID:          "exec-1",
		TemplateID:  "tpl-1",
		TriggeredBy: "bob",
		Status:      models.ExecutionStatusRunning,
	}
	node := &models.Node{ID: "end", Type: models.NodeTypeEnd}

	result, err := processor.Process(context.Background(), execution, node)
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.NotNil(t, result.Output["completed_at"])

	// Lifecycle mutation is the engine's job.
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)

	sent := dispatcher.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "bob", sent[0].Recipient)
	assert.Equal(t, "workflow_completed", sent[0].Kind)
}
