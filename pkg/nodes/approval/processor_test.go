package approval

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/notify"
)

func TestProcess_SuspendsAndNotifiesApprover(t *testing.T) {
	dispatcher := notify.NewRecordingDispatcher()
	processor := NewProcessor(dispatcher, slog.Default())

	execution := &models.Execution{
		ID:          "exec-1",
		TriggeredBy: "bob",
		Variables:   map[string]any{"amount": float64(500)},
	}
	node := &models.Node{
		ID:   "manager-signoff",
		Type: models.NodeTypeApproval,
		Config: map[string]any{
			"approver": "manager",
			"message":  "Approve spend of {{amount}}",
		},
	}

	result, err := processor.Process(context.Background(), execution, node)
	require.NoError(t, err)

	assert.True(t, result.Suspended)
	assert.Equal(t, "manager", result.Output["approver"])
	assert.Equal(t, "Approve spend of 500", result.Output["message"])

	sent := dispatcher.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "manager", sent[0].Recipient)
	assert.Equal(t, "approval_requested", sent[0].Kind)
	assert.Equal(t, "exec-1", sent[0].Data["execution_id"])
}

func TestApprover(t *testing.T) {
	node := &models.Node{Config: map[string]any{"approver": "manager"}}
	assert.Equal(t, "manager", Approver(node))

	assert.Empty(t, Approver(&models.Node{Config: map[string]any{}}))
}
