package workflow

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/flowengine/pkg/models"
)

func newTestRunner(buffer int) *runner {
	ctx, cancel := context.WithCancel(context.Background())

	return &runner{
		execution: &models.Execution{ID: "exec-1", Status: models.ExecutionStatusRunning},
		work:      make(chan workItem, buffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func TestEnqueueBlocksUntilDrained(t *testing.T) {
	r := newTestRunner(1)
	defer r.cancel()

	logger := slog.Default()

	r.enqueue(workItem{nodeID: "a"}, logger)

	done := make(chan struct{})

	go func() {
		r.enqueue(workItem{nodeID: "b"}, logger)
		close(done)
	}()

	// The channel is full, so the second enqueue must wait rather than drop.
	select {
	case <-done:
		t.Fatal("enqueue returned while the work channel was full")
	case <-time.After(50 * time.Millisecond):
	}

	item := <-r.work
	assert.Equal(t, "a", item.nodeID)

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("enqueue never completed after the channel drained")
	}

	item = <-r.work
	require.Equal(t, "b", item.nodeID)
}

func TestEnqueueReturnsOnStoppedRunner(t *testing.T) {
	r := newTestRunner(1)

	logger := slog.Default()

	r.enqueue(workItem{nodeID: "a"}, logger)
	r.cancel()

	done := make(chan struct{})

	go func() {
		r.enqueue(workItem{nodeID: "b"}, logger)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("enqueue blocked on a stopped runner")
	}
}
