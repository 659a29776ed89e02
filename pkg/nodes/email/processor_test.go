package email

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/notify"
	"github.com/taskhive/flowengine/pkg/protocol"
)

func TestProcess_DispatchesResolvedNotification(t *testing.T) {
	dispatcher := notify.NewRecordingDispatcher()
	processor := NewProcessor(dispatcher, slog.Default())

	execution := &models.Execution{
		ID:          "exec-1",
		TriggeredBy: "bob",
		Variables:   map[string]any{"who": "ann@example.com", "name": "Ann"},
	}
	node := &models.Node{
		ID:   "notify",
		Type: models.NodeTypeEmail,
		Config: map[string]any{
			"recipient": "{{who}}",
			"subject":   "Welcome {{name}}",
			"body":      "Hello {{name}}",
			"channels":  []any{"email", "in_app"},
		},
	}

	result, err := processor.Process(context.Background(), execution, node)
	require.NoError(t, err)

	sent := dispatcher.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ann@example.com", sent[0].Recipient)
	assert.Equal(t, "Welcome Ann", sent[0].Title)
	assert.Equal(t, "Hello Ann", sent[0].Message)
	assert.Equal(t, []string{"email", "in_app"}, sent[0].Channels)
	assert.Equal(t, "bob", sent[0].Sender)

	assert.Equal(t, "ann@example.com", result.Output["recipient"])
}

func TestProcess_DefaultsToEmailChannel(t *testing.T) {
	dispatcher := notify.NewRecordingDispatcher()
	processor := NewProcessor(dispatcher, slog.Default())

	execution := &models.Execution{ID: "exec-1", TriggeredBy: "bob"}
	node := &models.Node{
		ID:     "notify",
		Type:   models.NodeTypeEmail,
		Config: map[string]any{"recipient": "ann@example.com"},
	}

	_, err := processor.Process(context.Background(), execution, node)
	require.NoError(t, err)

	sent := dispatcher.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"email"}, sent[0].Channels)
}

type failingDispatcher struct{}

func (failingDispatcher) Send(context.Context, protocol.Notification) error {
	return errors.New("broker down")
}

func TestProcess_DispatchErrorDoesNotFailStep(t *testing.T) {
	processor := NewProcessor(failingDispatcher{}, slog.Default())

	execution := &models.Execution{ID: "exec-1", TriggeredBy: "bob"}
	node := &models.Node{
		ID:     "notify",
		Type:   models.NodeTypeEmail,
		Config: map[string]any{"recipient": "ann@example.com"},
	}

	result, err := processor.Process(context.Background(), execution, node)
	require.NoError(t, err)
	require.NotNil(t, result)
}
