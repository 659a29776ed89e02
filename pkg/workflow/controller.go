// Package workflow implements the execution engine: instance lifecycle,
// admission control, graph traversal and the retry policy.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskhive/flowengine/pkg/eventbus"
	"github.com/taskhive/flowengine/pkg/events"
	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/persistence"
	"github.com/taskhive/flowengine/pkg/protocol"
	"github.com/taskhive/flowengine/pkg/registry"
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// MaxConcurrent caps the number of executions running at once; excess
	// starts are queued.
	MaxConcurrent int

	// MaxRetries is the per-step retry ceiling before escalation.
	MaxRetries int

	// RetryDelay is the wait before a failed node is re-dispatched.
	RetryDelay time.Duration

	// ApprovalTimeout auto-fails approval steps that wait longer than this.
	// Zero keeps the wait unbounded.
	ApprovalTimeout time.Duration
}

const (
	defaultMaxConcurrent = 10
	defaultMaxRetries    = 3
	defaultRetryDelay    = time.Second
	workBuffer           = 256
)

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}

	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}

	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}

	return c
}

// StartOutcome reports how a start request was handled.
type StartOutcome string

const (
	StartOutcomeStarted StartOutcome = "started"
	StartOutcomeQueued  StartOutcome = "queued"
)

// Controller owns the running set, the admission queue and every execution
// runner. All cross-instance state lives here, guarded by mu, so multiple
// controllers never collide.
type Controller struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	bus         eventbus.EventPublisher
	notifier    protocol.NotificationDispatcher
	logger      *slog.Logger
	tracer      trace.Tracer
	cfg         Config

	mu        sync.Mutex
	running   map[string]*runner
	admitting int
	queue     []string
}

// NewController wires the engine. A nil tracer falls back to the globally
// registered provider, which is a no-op until one is installed.
func NewController(
	persistence persistence.Persistence,
	registry *registry.Registry,
	bus eventbus.EventPublisher,
	notifier protocol.NotificationDispatcher,
	logger *slog.Logger,
	tracer trace.Tracer,
	cfg Config,
) *Controller {
	if tracer == nil {
		tracer = otel.Tracer("flowengine/workflow")
	}

	return &Controller{
		persistence: persistence,
		registry:    registry,
		bus:         bus,
		notifier:    notifier,
		logger:      logger.With("module", "workflow_controller"),
		tracer:      tracer,
		cfg:         cfg.withDefaults(),
		running:     make(map[string]*runner),
	}
}

// CreateExecution instantiates a template: template defaults merged with
// caller overrides, read-only context seeded, persisted as pending.
func (c *Controller) CreateExecution(ctx context.Context, templateID, triggeredBy string, overrides map[string]any) (*models.Execution, error) {
	template, err := c.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	variables := make(map[string]any, len(template.Variables)+len(overrides))
	for k, v := range template.Variables {
		variables[k] = v
	}

	for k, v := range overrides {
		variables[k] = v
	}

	executionID := uuid.New().String()

	execution := &models.Execution{
		ID:          executionID,
		TemplateID:  template.ID,
		TriggeredBy: triggeredBy,
		Status:      models.ExecutionStatusPending,
		Variables:   variables,
		Context: map[string]any{
			"execution_id":  executionID,
			"template_id":   template.ID,
			"template_name": template.Name,
			"triggered_by":  triggeredBy,
		},
	}

	if err := c.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, err
	}

	return execution, nil
}

// StartExecution admits a pending execution or queues it when the running
// set is at the concurrency ceiling. Queuing mutates nothing beyond the
// queue marker.
func (c *Controller) StartExecution(ctx context.Context, executionID string) (StartOutcome, error) {
	execution, err := c.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return "", err
	}

	if execution.Status != models.ExecutionStatusPending {
		return "", fmt.Errorf("%w: %s is %s", ErrNotStartable, executionID, execution.Status)
	}

	c.mu.Lock()
	if len(c.running)+c.admitting >= c.cfg.MaxConcurrent {
		c.queue = append(c.queue, executionID)
		position := len(c.queue)
		c.mu.Unlock()

		c.publish(ctx, executionID, events.ExecutionQueued{
			BaseEvent:     events.NewBaseEvent(events.ExecutionQueuedEvent, execution.TemplateID, executionID),
			QueuePosition: position,
		})

		c.logger.Info("Execution queued", "execution_id", executionID, "position", position)

		return StartOutcomeQueued, nil
	}
	c.admitting++
	c.mu.Unlock()

	if err := c.admit(ctx, execution); err != nil {
		return "", err
	}

	return StartOutcomeStarted, nil
}

// admit transitions the execution to running, registers its runner and
// dispatches its entry node. Callers must have verified startability and
// reserved a slot by incrementing c.admitting under c.mu; admit converts the
// reservation into a running-set entry, or releases it on failure, so the
// ceiling check and the insert act as one critical section even though the
// template load and persist happen between them.
func (c *Controller) admit(ctx context.Context, execution *models.Execution) error {
	template, err := c.persistence.TemplateRepository().GetByID(ctx, execution.TemplateID)
	if err != nil {
		c.unreserve()

		return err
	}

	var entry string

	switch execution.Status {
	case models.ExecutionStatusPending:
		startNode, ok := template.StartNode()
		if !ok {
			c.unreserve()

			return models.ErrNoStartNode
		}

		entry = startNode.ID
	case models.ExecutionStatusPaused:
		if execution.CurrentStep == nil {
			c.unreserve()

			return fmt.Errorf("%w: paused execution has no current step", ErrNotResumable)
		}

		entry = *execution.CurrentStep
	default:
		c.unreserve()

		return fmt.Errorf("%w: %s is %s", ErrNotStartable, execution.ID, execution.Status)
	}

	resumed := execution.Status == models.ExecutionStatusPaused

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning

	if execution.StartTime == nil {
		execution.StartTime = &now
	}

	if err := c.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		c.unreserve()

		return err
	}

	runnerCtx, cancel := context.WithCancel(context.Background())

	r := &runner{
		execution: execution,
		template:  template,
		work:      make(chan workItem, workBuffer),
		ctx:       runnerCtx,
		cancel:    cancel,
	}

	c.mu.Lock()
	c.admitting--
	c.running[execution.ID] = r
	c.mu.Unlock()

	if resumed {
		c.publish(ctx, execution.ID, events.ExecutionResumed{
			BaseEvent:     events.NewBaseEvent(events.ExecutionResumedEvent, execution.TemplateID, execution.ID),
			ResumedAtStep: execution.CurrentStep,
		})
	} else {
		c.publish(ctx, execution.ID, events.ExecutionStarted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, execution.TemplateID, execution.ID),
			TriggeredBy: execution.TriggeredBy,
			Variables:   execution.Variables,
		})
	}

	c.logger.Info("Execution admitted",
		"execution_id", execution.ID,
		"template_id", execution.TemplateID,
		"entry_node", entry,
		"resumed", resumed,
	)

	r.enqueue(workItem{nodeID: entry}, c.logger)

	go c.run(runnerCtx, r)

	return nil
}

// PauseExecution stops a running execution, preserving its current step and
// freeing a concurrency slot.
func (c *Controller) PauseExecution(ctx context.Context, executionID string) error {
	c.mu.Lock()
	r, ok := c.running[executionID]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotPausable, executionID)
	}

	r.mu.Lock()
	if r.execution.Status != models.ExecutionStatusRunning {
		r.mu.Unlock()

		return fmt.Errorf("%w: %s is %s", ErrNotPausable, executionID, r.execution.Status)
	}

	r.execution.Status = models.ExecutionStatusPaused
	pausedAt := r.execution.CurrentStep
	c.persist(ctx, r.execution)
	r.mu.Unlock()

	c.release(r)

	c.publish(ctx, executionID, events.ExecutionPaused{
		BaseEvent:    events.NewBaseEvent(events.ExecutionPausedEvent, r.execution.TemplateID, executionID),
		PausedAtStep: pausedAt,
	})

	c.logger.Info("Execution paused", "execution_id", executionID)

	c.drainQueue()

	return nil
}

// ResumeExecution re-admits a paused execution at its recorded current step,
// queueing it when no slot is free.
func (c *Controller) ResumeExecution(ctx context.Context, executionID string) (StartOutcome, error) {
	execution, err := c.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return "", err
	}

	if execution.Status != models.ExecutionStatusPaused {
		return "", fmt.Errorf("%w: %s is %s", ErrNotResumable, executionID, execution.Status)
	}

	c.mu.Lock()
	if len(c.running)+c.admitting >= c.cfg.MaxConcurrent {
		c.queue = append(c.queue, executionID)
		position := len(c.queue)
		c.mu.Unlock()

		c.publish(ctx, executionID, events.ExecutionQueued{
			BaseEvent:     events.NewBaseEvent(events.ExecutionQueuedEvent, execution.TemplateID, executionID),
			QueuePosition: position,
		})

		return StartOutcomeQueued, nil
	}
	c.admitting++
	c.mu.Unlock()

	if err := c.admit(ctx, execution); err != nil {
		return "", err
	}

	return StartOutcomeStarted, nil
}

// CancelExecution terminates an execution in any non-terminal status.
// Already-applied side effects are not rolled back; an in-flight processor
// call is not preempted but its result is discarded.
func (c *Controller) CancelExecution(ctx context.Context, executionID string) error {
	c.mu.Lock()
	r, ok := c.running[executionID]

	if !ok {
		// Queued executions are cancellable too; drop the queue marker.
		for i, queued := range c.queue {
			if queued == executionID {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)

				break
			}
		}
	}
	c.mu.Unlock()

	var execution *models.Execution

	if ok {
		r.mu.Lock()
		execution = r.execution
	} else {
		loaded, err := c.persistence.ExecutionRepository().GetByID(ctx, executionID)
		if err != nil {
			return err
		}

		execution = loaded
	}

	if execution.Status.IsTerminal() {
		if ok {
			r.mu.Unlock()
		}

		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, executionID, execution.Status)
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.EndTime = &now

	if execution.StartTime != nil {
		execution.Duration = now.Sub(*execution.StartTime)
	}

	c.persist(ctx, execution)

	if ok {
		r.mu.Unlock()
		c.release(r)
	}

	c.publish(ctx, executionID, events.ExecutionCancelled{
		BaseEvent:  events.NewBaseEvent(events.ExecutionCancelledEvent, execution.TemplateID, executionID),
		DurationMs: execution.Duration.Milliseconds(),
	})

	c.logger.Info("Execution cancelled", "execution_id", executionID)

	c.drainQueue()

	return nil
}

// Status is the read projection returned by GetExecutionStatus.
type Status struct {
	ID          string                  `json:"id"`
	TemplateID  string                  `json:"template_id"`
	Status      models.ExecutionStatus  `json:"status"`
	Progress    int                     `json:"progress"`
	CurrentStep *string                 `json:"current_step,omitempty"`
	Steps       []models.StepState      `json:"steps"`
	StartTime   *time.Time              `json:"start_time,omitempty"`
	EndTime     *time.Time              `json:"end_time,omitempty"`
	Errors      []models.ExecutionError `json:"errors,omitempty"`
}

// GetExecutionStatus returns a snapshot of the execution. It never mutates.
func (c *Controller) GetExecutionStatus(ctx context.Context, executionID string) (*Status, error) {
	c.mu.Lock()
	r, ok := c.running[executionID]
	c.mu.Unlock()

	if ok {
		r.mu.Lock()
		defer r.mu.Unlock()

		return snapshot(r.execution), nil
	}

	execution, err := c.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return snapshot(execution), nil
}

func snapshot(execution *models.Execution) *Status {
	steps := make([]models.StepState, 0, len(execution.Steps))

	for _, step := range execution.Steps {
		copied := *step

		// Output maps keep being merged into while the execution runs;
		// the snapshot must not share them.
		if step.Output != nil {
			output := make(map[string]any, len(step.Output))
			for k, v := range step.Output {
				output[k] = v
			}

			copied.Output = output
		}

		steps = append(steps, copied)
	}

	errs := make([]models.ExecutionError, len(execution.Errors))
	copy(errs, execution.Errors)

	return &Status{
		ID:          execution.ID,
		TemplateID:  execution.TemplateID,
		Status:      execution.Status,
		Progress:    execution.Progress,
		CurrentStep: execution.CurrentStep,
		Steps:       steps,
		StartTime:   execution.StartTime,
		EndTime:     execution.EndTime,
		Errors:      errs,
	}
}

// RunningCount reports the size of the running set.
func (c *Controller) RunningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.running)
}

// QueueLength reports how many executions await admission.
func (c *Controller) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

// release removes the runner from the running set and stops its goroutine.
// Idempotent: a runner already released is a no-op.
func (c *Controller) release(r *runner) {
	c.mu.Lock()
	_, present := c.running[r.execution.ID]
	delete(c.running, r.execution.ID)
	c.mu.Unlock()

	if present {
		r.cancel()
	}
}

// drainQueue admits queued executions while slots are free. The slot is
// reserved when the entry is popped, so a concurrent start cannot claim it
// during the admission I/O.
func (c *Controller) drainQueue() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || len(c.running)+c.admitting >= c.cfg.MaxConcurrent {
			c.mu.Unlock()

			return
		}

		executionID := c.queue[0]
		c.queue = c.queue[1:]
		c.admitting++
		c.mu.Unlock()

		ctx := context.Background()

		execution, err := c.persistence.ExecutionRepository().GetByID(ctx, executionID)
		if err != nil {
			c.unreserve()
			c.logger.Error("Failed to load queued execution", "execution_id", executionID, "error", err)

			continue
		}

		// Cancelled while queued; skip.
		if execution.Status.IsTerminal() {
			c.unreserve()

			continue
		}

		if err := c.admit(ctx, execution); err != nil {
			c.logger.Error("Failed to admit queued execution", "execution_id", executionID, "error", err)
		}
	}
}

// unreserve rolls back a slot reservation that never became a runner.
func (c *Controller) unreserve() {
	c.mu.Lock()
	c.admitting--
	c.mu.Unlock()
}

// persist saves the execution, logging instead of propagating failures:
// storage hiccups must not derail a running instance.
func (c *Controller) persist(ctx context.Context, execution *models.Execution) {
	if err := c.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		c.logger.Error("Failed to persist execution", "execution_id", execution.ID, "error", err)
	}
}

// publish pushes an event to the broadcaster. Delivery failure never affects
// engine state.
func (c *Controller) publish(ctx context.Context, key string, event events.Event) {
	if c.bus == nil {
		return
	}

	if err := c.bus.Publish(ctx, key, event); err != nil {
		c.logger.Warn("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
