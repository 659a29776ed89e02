package delay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/flowengine/pkg/models"
)

func TestProcess_WaitsForConfiguredDuration(t *testing.T) {
	processor := NewProcessor()
	node := &models.Node{
		ID:     "wait",
		Type:   models.NodeTypeDelay,
		Config: map[string]any{"duration": float64(20)},
	}

	start := time.Now()
	result, err := processor.Process(context.Background(), nil, node)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Equal(t, int64(20), result.Output["waited_ms"])
}

func TestProcess_CancelInterruptsWait(t *testing.T) {
	processor := NewProcessor()
	node := &models.Node{
		ID:     "wait",
		Type:   models.NodeTypeDelay,
		Config: map[string]any{"duration": float64(10_000)},
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := processor.Process(ctx, nil, node)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcess_MissingDurationReturnsImmediately(t *testing.T) {
	processor := NewProcessor()
	node := &models.Node{ID: "wait", Type: models.NodeTypeDelay, Config: map[string]any{}}

	result, err := processor.Process(context.Background(), nil, node)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Output["waited_ms"])
}
