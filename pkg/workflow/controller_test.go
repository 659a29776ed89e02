package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/nodes/end"
	"github.com/taskhive/flowengine/pkg/nodes/start"
	"github.com/taskhive/flowengine/pkg/nodes/task"
	"github.com/taskhive/flowengine/pkg/notify"
	"github.com/taskhive/flowengine/pkg/persistence"
	"github.com/taskhive/flowengine/pkg/persistence/file"
	"github.com/taskhive/flowengine/pkg/protocol"
	"github.com/taskhive/flowengine/pkg/registry"
	"github.com/taskhive/flowengine/pkg/taskstore/memory"
	"github.com/taskhive/flowengine/pkg/testutil"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

type testHarness struct {
	controller  *Controller
	persistence persistence.Persistence
	registry    *registry.Registry
	dispatcher  *notify.RecordingDispatcher
	store       *memory.Store
}

func newHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	logger := slog.Default()
	dispatcher := notify.NewRecordingDispatcher()
	store := memory.NewStore()

	reg := registry.NewRegistry(logger)
	reg.Register(start.NewProcessor(), nil)
	reg.Register(end.NewProcessor(dispatcher, logger), nil)
	reg.Register(task.NewProcessor(store), nil)

	p := file.NewPersistence(t.TempDir())

	return &testHarness{
		controller:  NewController(p, reg, nil, dispatcher, logger, nil, cfg),
		persistence: p,
		registry:    reg,
		dispatcher:  dispatcher,
		store:       store,
	}
}

func (h *testHarness) saveTemplate(t *testing.T, template *models.Template) {
	t.Helper()
	require.NoError(t, h.persistence.TemplateRepository().Save(context.Background(), template))
}

func (h *testHarness) waitForStatus(t *testing.T, executionID string, want models.ExecutionStatus) *Status {
	t.Helper()

	var status *Status

	require.Eventually(t, func() bool {
		var err error

		status, err = h.controller.GetExecutionStatus(context.Background(), executionID)

		return err == nil && status.Status == want
	}, waitFor, tick, "execution %s never reached %s", executionID, want)

	return status
}

func (h *testHarness) waitForStepStatus(t *testing.T, executionID, nodeID string, want models.StepStatus) {
	t.Helper()

	require.Eventually(t, func() bool {
		status, err := h.controller.GetExecutionStatus(context.Background(), executionID)
		if err != nil {
			return false
		}

		for _, step := range status.Steps {
			if step.NodeID == nodeID && step.Status == want {
				return true
			}
		}

		return false
	}, waitFor, tick, "step %s never reached %s", nodeID, want)
}

// gateProcessor blocks inside Process until the test releases it, so tests
// can observe in-flight executions deterministically.
type gateProcessor struct {
	nodeType models.NodeType
	started  chan string
	release  chan error
}

func newGateProcessor(nodeType models.NodeType) *gateProcessor {
	return &gateProcessor{
		nodeType: nodeType,
		started:  make(chan string, 16),
		release:  make(chan error, 16),
	}
}

func (g *gateProcessor) Type() models.NodeType { return g.nodeType }

func (g *gateProcessor) Process(ctx context.Context, _ *models.Execution, node *models.Node) (*protocol.Result, error) {
	g.started <- node.ID

	select {
	case err := <-g.release:
		if err != nil {
			return nil, err
		}

		return &protocol.Result{Output: map[string]any{"gated": true}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flakyProcessor fails the first failCount attempts and succeeds afterwards.
type flakyProcessor struct {
	mu        sync.Mutex
	attempts  int
	failCount int
}

func (f *flakyProcessor) Type() models.NodeType { return models.NodeTypeAPICall }

func (f *flakyProcessor) Process(context.Context, *models.Execution, *models.Node) (*protocol.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.attempts <= f.failCount {
		return nil, errors.New("transient failure")
	}

	return &protocol.Result{Output: map[string]any{"attempts": f.attempts}}, nil
}

func (f *flakyProcessor) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.attempts
}

func TestLinearExecutionCompletes(t *testing.T) {
	h := newHarness(t, Config{})

	template := testutil.LinearTemplate(&models.Node{
		ID:     "create-task",
		Type:   models.NodeTypeTask,
		Config: map[string]any{"title": "Task for {{assignee}}"},
	})
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", map[string]any{"assignee": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	assert.Equal(t, template.ID, execution.Context["template_id"])
	assert.Equal(t, "bob", execution.Context["triggered_by"])

	outcome, err := h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, StartOutcomeStarted, outcome)

	status := h.waitForStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Equal(t, 100, status.Progress)
	assert.NotNil(t, status.EndTime)

	// One step per node: start, create-task, end.
	require.Len(t, status.Steps, 3)

	for _, step := range status.Steps {
		assert.Equal(t, models.StepStatusCompleted, step.Status, step.NodeID)
	}

	tasks := h.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Task for Ann", tasks[0].Title)

	// Completion notification went to the triggering actor.
	var completionSent bool

	for _, n := range h.dispatcher.Sent() {
		if n.Kind == "workflow_completed" && n.Recipient == "bob" {
			completionSent = true
		}
	}

	assert.True(t, completionSent)
}

func TestCreateExecution_MergesVariables(t *testing.T) {
	h := newHarness(t, Config{})

	template := testutil.CreateTestTemplate(func(tpl *models.Template) {
		tpl.Variables = map[string]any{"a": "default-a", "b": "default-b"}
	})
	h.saveTemplate(t, template)

	execution, err := h.controller.CreateExecution(context.Background(), template.ID, "bob", map[string]any{"b": "override-b", "c": "new-c"})
	require.NoError(t, err)

	assert.Equal(t, "default-a", execution.Variables["a"])
	assert.Equal(t, "override-b", execution.Variables["b"])
	assert.Equal(t, "new-c", execution.Variables["c"])
}

func TestStartExecution_OnlyPendingIsStartable(t *testing.T) {
	h := newHarness(t, Config{})

	template := testutil.CreateTestTemplate()
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)

	h.waitForStatus(t, execution.ID, models.ExecutionStatusCompleted)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	assert.ErrorIs(t, err, ErrNotStartable)
}

func TestRetryExhaustionFailsExecution(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 2, RetryDelay: time.Millisecond})

	flaky := &flakyProcessor{failCount: 100}
	h.registry.Register(flaky, nil)

	template := testutil.LinearTemplate(&models.Node{
		ID:     "call",
		Type:   models.NodeTypeAPICall,
		Config: map[string]any{"url": "http://unused"},
	})
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)

	status := h.waitForStatus(t, execution.ID, models.ExecutionStatusFailed)

	// Initial attempt plus two retries.
	assert.Equal(t, 3, flaky.Attempts())

	var failedStep *models.StepState

	for i := range status.Steps {
		if status.Steps[i].NodeID == "call" {
			failedStep = &status.Steps[i]
		}
	}

	require.NotNil(t, failedStep)
	assert.Equal(t, models.StepStatusFailed, failedStep.Status)
	assert.Equal(t, 2, failedStep.RetryCount)
	require.NotNil(t, failedStep.Error)
	assert.Equal(t, models.ErrCodeRetriesExhausted, failedStep.Error.Code)

	require.NotEmpty(t, status.Errors)
	assert.Equal(t, models.ErrCodeRetriesExhausted, status.Errors[0].Code)

	// Failure notification went to the triggering actor exactly once.
	var failureNotices int

	for _, n := range h.dispatcher.Sent() {
		if n.Kind == "workflow_failed" && n.Recipient == "bob" {
			failureNotices++
		}
	}

	assert.Equal(t, 1, failureNotices)
}

func TestRetrySucceedsWithinCeiling(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 3, RetryDelay: time.Millisecond})

	flaky := &flakyProcessor{failCount: 2}
	h.registry.Register(flaky, nil)

	template := testutil.LinearTemplate(&models.Node{
		ID:     "call",
		Type:   models.NodeTypeAPICall,
		Config: map[string]any{"url": "http://unused"},
	})
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)

	status := h.waitForStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Equal(t, 3, flaky.Attempts())

	for _, step := range status.Steps {
		if step.NodeID == "call" {
			assert.Equal(t, 2, step.RetryCount)
		}
	}
}

func TestConcurrencyCeilingQueuesExcessStarts(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrent: 1})

	gate := newGateProcessor(models.NodeTypeDelay)
	h.registry.Register(gate, nil)

	template := testutil.LinearTemplate(&models.Node{
		ID:     "hold",
		Type:   models.NodeTypeDelay,
		Config: map[string]any{},
	})
	h.saveTemplate(t, template)

	ctx := context.Background()

	first, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)
	second, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	outcome, err := h.controller.StartExecution(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StartOutcomeStarted, outcome)

	// Wait until the first execution occupies its slot.
	<-gate.started

	outcome, err = h.controller.StartExecution(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StartOutcomeQueued, outcome)
	assert.Equal(t, 1, h.controller.QueueLength())

	// Queued start must not mutate the execution.
	stored, err := h.persistence.ExecutionRepository().GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, stored.Status)

	// Release the first; the freed slot admits the second.
	gate.release <- nil
	h.waitForStatus(t, first.ID, models.ExecutionStatusCompleted)

	<-gate.started
	gate.release <- nil
	h.waitForStatus(t, second.ID, models.ExecutionStatusCompleted)
	assert.Equal(t, 0, h.controller.QueueLength())
}

func TestPauseAndResume(t *testing.T) {
	h := newHarness(t, Config{})

	gate := newGateProcessor(models.NodeTypeDelay)
	h.registry.Register(gate, nil)

	template := testutil.LinearTemplate(&models.Node{
		ID:     "hold",
		Type:   models.NodeTypeDelay,
		Config: map[string]any{},
	})
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)

	<-gate.started

	require.NoError(t, h.controller.PauseExecution(ctx, execution.ID))

	status := h.waitForStatus(t, execution.ID, models.ExecutionStatusPaused)
	require.NotNil(t, status.CurrentStep)
	assert.Equal(t, "hold", *status.CurrentStep)

	// The in-flight result is discarded after pause.
	gate.release <- nil

	// Pausing a non-running execution is rejected.
	assert.ErrorIs(t, h.controller.PauseExecution(ctx, execution.ID), ErrNotPausable)

	outcome, err := h.controller.ResumeExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, StartOutcomeStarted, outcome)

	// Resume re-dispatches the preserved current step.
	<-gate.started
	gate.release <- nil

	h.waitForStatus(t, execution.ID, models.ExecutionStatusCompleted)
}

func TestCancelExecution(t *testing.T) {
	h := newHarness(t, Config{})

	gate := newGateProcessor(models.NodeTypeDelay)
	h.registry.Register(gate, nil)

	template := testutil.LinearTemplate(&models.Node{
		ID:     "hold",
		Type:   models.NodeTypeDelay,
		Config: map[string]any{},
	})
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)

	<-gate.started

	require.NoError(t, h.controller.CancelExecution(ctx, execution.ID))

	status := h.waitForStatus(t, execution.ID, models.ExecutionStatusCancelled)
	assert.NotNil(t, status.EndTime)
	assert.Equal(t, 0, h.controller.RunningCount())

	// Terminal statuses admit no further transitions.
	assert.ErrorIs(t, h.controller.CancelExecution(ctx, execution.ID), ErrAlreadyTerminal)

	_, err = h.controller.ResumeExecution(ctx, execution.ID)
	assert.ErrorIs(t, err, ErrNotResumable)
}

func TestCancelPendingExecution(t *testing.T) {
	h := newHarness(t, Config{})

	template := testutil.CreateTestTemplate()
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	require.NoError(t, h.controller.CancelExecution(ctx, execution.ID))

	stored, err := h.persistence.ExecutionRepository().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
}

func TestConditionalBranching(t *testing.T) {
	h := newHarness(t, Config{})

	template := &models.Template{
		ID:    "branching",
		Name:  "Branching",
		Owner: "tester",
		Nodes: []*models.Node{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "high-task", Type: models.NodeTypeTask, Config: map[string]any{"title": "high"}},
			{ID: "low-task", Type: models.NodeTypeTask, Config: map[string]any{"title": "low"}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []*models.Connection{
			{Source: "start", Target: "high-task", Condition: "{{priority}} == high"},
			{Source: "start", Target: "low-task", Condition: "{{priority}} == low"},
			{Source: "high-task", Target: "end"},
			{Source: "low-task", Target: "end"},
		},
	}
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", map[string]any{"priority": "high"})
	require.NoError(t, err)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)

	status := h.waitForStatus(t, execution.ID, models.ExecutionStatusCompleted)

	tasks := h.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "high", tasks[0].Title)

	// The unsatisfied branch was never entered.
	for _, step := range status.Steps {
		assert.NotEqual(t, "low-task", step.NodeID)
	}
}

func TestMissingNodeFailsExecution(t *testing.T) {
	h := newHarness(t, Config{})

	// One dangling connection: Validate would reject this template, but the
	// engine must still fail gracefully when handed one.
	template := &models.Template{
		ID:    "broken",
		Name:  "Broken",
		Owner: "tester",
		Nodes: []*models.Node{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []*models.Connection{
			{Source: "start", Target: "ghost"},
		},
	}
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)

	status := h.waitForStatus(t, execution.ID, models.ExecutionStatusFailed)
	require.NotEmpty(t, status.Errors)
	assert.Equal(t, models.ErrCodeNodeNotFound, status.Errors[0].Code)
}

func TestProgressNeverDecreases(t *testing.T) {
	h := newHarness(t, Config{})

	template := testutil.LinearTemplate(
		&models.Node{ID: "t1", Type: models.NodeTypeTask, Config: map[string]any{"title": "one"}},
		&models.Node{ID: "t2", Type: models.NodeTypeTask, Config: map[string]any{"title": "two"}},
	)
	h.saveTemplate(t, template)

	ctx := context.Background()

	execution, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	_, err = h.controller.StartExecution(ctx, execution.ID)
	require.NoError(t, err)

	last := -1

	require.Eventually(t, func() bool {
		status, err := h.controller.GetExecutionStatus(ctx, execution.ID)
		if err != nil {
			return false
		}

		require.GreaterOrEqual(t, status.Progress, last)
		last = status.Progress

		return status.Status == models.ExecutionStatusCompleted
	}, waitFor, tick)

	assert.Equal(t, 100, last)
}

// gatedTemplates delays template loads once armed, holding an admission open
// so tests can interleave concurrent starts.
type gatedTemplates struct {
	persistence.TemplateRepository

	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTemplates) GetByID(ctx context.Context, id string) (*models.Template, error) {
	if g.armed.Load() {
		g.entered <- struct{}{}
		<-g.release
	}

	return g.TemplateRepository.GetByID(ctx, id)
}

type gatedPersistence struct {
	persistence.Persistence

	templates *gatedTemplates
}

func (g *gatedPersistence) TemplateRepository() persistence.TemplateRepository {
	return g.templates
}

func TestConcurrentStartsHonorCeiling(t *testing.T) {
	logger := slog.Default()
	dispatcher := notify.NewRecordingDispatcher()
	store := memory.NewStore()

	reg := registry.NewRegistry(logger)
	reg.Register(start.NewProcessor(), nil)
	reg.Register(end.NewProcessor(dispatcher, logger), nil)
	reg.Register(task.NewProcessor(store), nil)

	base := file.NewPersistence(t.TempDir())
	gated := &gatedTemplates{
		TemplateRepository: base.TemplateRepository(),
		entered:            make(chan struct{}, 8),
		release:            make(chan struct{}),
	}

	h := &testHarness{
		controller:  NewController(&gatedPersistence{Persistence: base, templates: gated}, reg, nil, dispatcher, logger, nil, Config{MaxConcurrent: 1}),
		persistence: base,
		registry:    reg,
		dispatcher:  dispatcher,
		store:       store,
	}

	ctx := context.Background()

	template := testutil.CreateTestTemplate()
	h.saveTemplate(t, template)

	first, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	second, err := h.controller.CreateExecution(ctx, template.ID, "bob", nil)
	require.NoError(t, err)

	gated.armed.Store(true)

	firstOutcome := make(chan StartOutcome, 1)

	go func() {
		outcome, err := h.controller.StartExecution(ctx, first.ID)
		assert.NoError(t, err)
		firstOutcome <- outcome
	}()

	// The first start is now mid-admission: the slot is claimed but the
	// runner is not yet registered.
	select {
	case <-gated.entered:
	case <-time.After(waitFor):
		t.Fatal("first start never reached the template load")
	}

	outcome, err := h.controller.StartExecution(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StartOutcomeQueued, outcome)

	close(gated.release)

	select {
	case outcome := <-firstOutcome:
		assert.Equal(t, StartOutcomeStarted, outcome)
	case <-time.After(waitFor):
		t.Fatal("first start never returned")
	}

	assert.LessOrEqual(t, h.controller.RunningCount(), 1)

	// The queued execution is admitted once the slot frees.
	h.waitForStatus(t, first.ID, models.ExecutionStatusCompleted)
	h.waitForStatus(t, second.ID, models.ExecutionStatusCompleted)
}

func TestSnapshotCopiesStepOutputs(t *testing.T) {
	execution := testutil.CreateTestExecution(testutil.CreateTestTemplate())

	step := execution.EnsureStep("n1")
	step.Output = map[string]any{"value": "before"}

	snap := snapshot(execution)
	step.Output["value"] = "after"

	require.Len(t, snap.Steps, 1)
	assert.Equal(t, "before", snap.Steps[0].Output["value"])
}
