package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taskhive/flowengine/pkg/condition"
	"github.com/taskhive/flowengine/pkg/events"
	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/otelhelper"
	"github.com/taskhive/flowengine/pkg/protocol"
)

// workItem is one unit of traversal: dispatch nodeID once notBefore has
// passed, with the upstream node's output available to edge conditions.
type workItem struct {
	nodeID    string
	notBefore time.Time
	resultCtx map[string]any
}

// runner drives a single execution. The execution and its template are owned
// by the runner; every mutation happens under mu so status reads stay
// consistent while processors run.
type runner struct {
	execution *models.Execution
	template  *models.Template
	work      chan workItem
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
}

// enqueue pushes a work item, blocking when the channel is full until the
// run loop drains it or the runner stops. Dropping instead would strand the
// branch or retry and leave the execution running forever.
func (r *runner) enqueue(item workItem, logger *slog.Logger) {
	select {
	case r.work <- item:
	case <-r.ctx.Done():
		logger.Warn("Runner stopped, discarding node dispatch",
			"execution_id", r.execution.ID,
			"node_id", item.nodeID,
		)
	}
}

// run is the runner goroutine: it consumes work items until the execution
// reaches a terminal status or the runner context is cancelled. Retries are
// delayed items on the same channel, so a single loop covers first attempts
// and resubmissions alike.
func (c *Controller) run(ctx context.Context, r *runner) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-r.work:
			if wait := time.Until(item.notBefore); wait > 0 {
				timer := time.NewTimer(wait)

				select {
				case <-ctx.Done():
					timer.Stop()

					return
				case <-timer.C:
				}
			}

			c.processNode(ctx, r, item)

			r.mu.Lock()
			terminal := r.execution.Status.IsTerminal()
			r.mu.Unlock()

			if terminal {
				c.release(r)
				c.drainQueue()

				return
			}
		}
	}
}

// processNode runs one node: step bookkeeping under the runner lock, the
// processor call outside it, then advancement. Results arriving after a
// pause or cancel are discarded.
func (c *Controller) processNode(ctx context.Context, r *runner, item workItem) {
	r.mu.Lock()

	if r.execution.Status != models.ExecutionStatusRunning {
		r.mu.Unlock()

		return
	}

	node, ok := r.template.Node(item.nodeID)
	if !ok {
		r.mu.Unlock()
		c.failExecution(ctx, r, models.ExecutionError{
			NodeID:  item.nodeID,
			Code:    models.ErrCodeNodeNotFound,
			Message: "node " + item.nodeID + " not found in template",
		})

		return
	}

	step := r.execution.EnsureStep(item.nodeID)
	step.Status = models.StepStatusRunning

	// Retries keep the original start time.
	if step.StartedAt == nil {
		now := time.Now().UTC()
		step.StartedAt = &now
	}

	nodeID := item.nodeID
	r.execution.CurrentStep = &nodeID
	r.execution.AppendLog("info", "Processing node "+nodeID, nodeID, nil)
	c.persist(ctx, r.execution)
	retryCount := step.RetryCount
	r.mu.Unlock()

	c.publish(ctx, r.execution.ID, events.StepUpdated{
		BaseEvent:  events.NewBaseEvent(events.StepUpdatedEvent, r.execution.TemplateID, r.execution.ID),
		NodeID:     nodeID,
		Status:     models.StepStatusRunning,
		RetryCount: retryCount,
	})

	processor, err := c.registry.Processor(node.Type)
	if err != nil {
		// No processor for the type is structural, not retryable.
		c.failExecution(ctx, r, models.ExecutionError{
			NodeID:  nodeID,
			Code:    models.ErrCodeNodeNotFound,
			Message: err.Error(),
		})

		return
	}

	spanCtx, span := c.tracer.Start(ctx, "workflow.node."+string(node.Type))
	span.SetAttributes(
		attribute.String("flowengine.execution.id", r.execution.ID),
		attribute.String("flowengine.node.id", nodeID),
		attribute.String("flowengine.node.type", string(node.Type)),
	)

	result, err := processor.Process(spanCtx, r.execution, node)

	otelhelper.SetError(span, err)
	span.End()

	if err != nil {
		c.handleNodeFailure(ctx, r, node, err)

		return
	}

	r.mu.Lock()

	// The execution may have been paused or cancelled while the processor
	// ran; its result no longer applies.
	if r.execution.Status != models.ExecutionStatusRunning {
		r.mu.Unlock()

		return
	}

	step, _ = r.execution.Step(nodeID)

	if result.Suspended {
		step.Status = models.StepStatusWaitingApproval
		step.Output = result.Output
		c.persist(ctx, r.execution)
		r.mu.Unlock()

		approver, _ := result.Output["approver"].(string)
		message, _ := result.Output["message"].(string)

		c.publish(ctx, r.execution.ID, events.StepUpdated{
			BaseEvent: events.NewBaseEvent(events.StepUpdatedEvent, r.execution.TemplateID, r.execution.ID),
			NodeID:    nodeID,
			Status:    models.StepStatusWaitingApproval,
		})
		c.publish(ctx, r.execution.ID, events.ApprovalRequested{
			BaseEvent: events.NewBaseEvent(events.ApprovalRequestedEvent, r.execution.TemplateID, r.execution.ID),
			NodeID:    nodeID,
			Approver:  approver,
			Message:   message,
		})

		c.logger.Info("Execution waiting for approval", "execution_id", r.execution.ID, "node_id", nodeID)

		return
	}

	c.completeStep(step, result.Output)
	r.execution.RecomputeProgress(len(r.template.Nodes))

	var completedEvent *events.ExecutionCompleted

	if result.Completed {
		now := time.Now().UTC()
		r.execution.Status = models.ExecutionStatusCompleted
		r.execution.EndTime = &now

		if r.execution.StartTime != nil {
			r.execution.Duration = now.Sub(*r.execution.StartTime)
		}

		r.execution.Progress = 100
		r.execution.AppendLog("info", "Execution completed", nodeID, nil)

		stepsCompleted := 0

		for _, s := range r.execution.Steps {
			if s.Status == models.StepStatusCompleted {
				stepsCompleted++
			}
		}

		completedEvent = &events.ExecutionCompleted{
			BaseEvent:      events.NewBaseEvent(events.ExecutionCompletedEvent, r.execution.TemplateID, r.execution.ID),
			DurationMs:     r.execution.Duration.Milliseconds(),
			StepsCompleted: stepsCompleted,
		}
	}

	c.persist(ctx, r.execution)
	progress := r.execution.Progress
	currentStep := r.execution.CurrentStep
	r.mu.Unlock()

	c.publish(ctx, r.execution.ID, events.StepUpdated{
		BaseEvent: events.NewBaseEvent(events.StepUpdatedEvent, r.execution.TemplateID, r.execution.ID),
		NodeID:    nodeID,
		Status:    models.StepStatusCompleted,
	})
	c.publish(ctx, r.execution.ID, events.ExecutionProgress{
		BaseEvent:   events.NewBaseEvent(events.ExecutionProgressEvent, r.execution.TemplateID, r.execution.ID),
		Progress:    progress,
		CurrentStep: currentStep,
	})

	if completedEvent != nil {
		c.publish(ctx, r.execution.ID, *completedEvent)
		c.logger.Info("Execution completed", "execution_id", r.execution.ID)

		return
	}

	c.processNextNodes(ctx, r, nodeID, result.Output)
}

// completeStep marks the step done and stamps its timing.
func (c *Controller) completeStep(step *models.StepState, output map[string]any) {
	now := time.Now().UTC()
	step.Status = models.StepStatusCompleted
	step.CompletedAt = &now

	if step.StartedAt != nil {
		step.Duration = now.Sub(*step.StartedAt)
	}

	if output != nil {
		if step.Output == nil {
			step.Output = output
		} else {
			for k, v := range output {
				step.Output[k] = v
			}
		}
	}
}

// processNextNodes enqueues every outgoing connection whose condition holds.
// All satisfied edges fire, so parallel branches fan out; an edge without a
// condition always fires.
func (c *Controller) processNextNodes(ctx context.Context, r *runner, fromNodeID string, resultCtx map[string]any) {
	r.mu.Lock()

	if r.execution.Status != models.ExecutionStatusRunning {
		r.mu.Unlock()

		return
	}

	connections := r.template.ConnectionsFrom(fromNodeID)

	variables := make(map[string]any, len(r.execution.Variables)+len(resultCtx))
	for k, v := range r.execution.Variables {
		variables[k] = v
	}

	for k, v := range resultCtx {
		variables[k] = v
	}

	execCtx := r.execution.Context
	r.mu.Unlock()

	for _, conn := range connections {
		if conn.Condition != "" && !condition.Evaluate(conn.Condition, variables, execCtx) {
			c.logger.Debug("Connection condition not satisfied",
				"execution_id", r.execution.ID,
				"source", conn.Source,
				"target", conn.Target,
				"condition", conn.Condition,
			)

			continue
		}

		r.enqueue(workItem{nodeID: conn.Target, resultCtx: resultCtx}, c.logger)
	}
}

// handleNodeFailure applies the retry policy: resubmit with a delay while
// attempts remain, otherwise fail the step and escalate to the execution.
func (c *Controller) handleNodeFailure(ctx context.Context, r *runner, node *models.Node, nodeErr error) {
	r.mu.Lock()

	if r.execution.Status != models.ExecutionStatusRunning {
		r.mu.Unlock()

		return
	}

	step, ok := r.execution.Step(node.ID)
	if !ok {
		step = r.execution.EnsureStep(node.ID)
	}

	if step.RetryCount < c.cfg.MaxRetries {
		step.RetryCount++
		step.Status = models.StepStatusPending
		retryCount := step.RetryCount
		r.execution.AppendLog("warn", "Node failed, retrying: "+nodeErr.Error(), node.ID, map[string]any{
			"retry_count": retryCount,
		})
		c.persist(ctx, r.execution)
		r.mu.Unlock()

		c.logger.Warn("Node failed, scheduling retry",
			"execution_id", r.execution.ID,
			"node_id", node.ID,
			"retry_count", retryCount,
			"error", nodeErr,
		)

		c.publish(ctx, r.execution.ID, events.StepUpdated{
			BaseEvent:  events.NewBaseEvent(events.StepUpdatedEvent, r.execution.TemplateID, r.execution.ID),
			NodeID:     node.ID,
			Status:     models.StepStatusPending,
			RetryCount: retryCount,
			Error:      nodeErr.Error(),
		})

		r.enqueue(workItem{nodeID: node.ID, notBefore: time.Now().Add(c.cfg.RetryDelay)}, c.logger)

		return
	}

	now := time.Now().UTC()
	stepErr := &models.ExecutionError{
		NodeID:    node.ID,
		Code:      models.ErrCodeRetriesExhausted,
		Message:   nodeErr.Error(),
		Timestamp: now,
	}
	step.Status = models.StepStatusFailed
	step.CompletedAt = &now
	step.Error = stepErr

	if step.StartedAt != nil {
		step.Duration = now.Sub(*step.StartedAt)
	}

	r.mu.Unlock()

	c.publish(ctx, r.execution.ID, events.StepUpdated{
		BaseEvent:  events.NewBaseEvent(events.StepUpdatedEvent, r.execution.TemplateID, r.execution.ID),
		NodeID:     node.ID,
		Status:     models.StepStatusFailed,
		RetryCount: c.cfg.MaxRetries,
		Error:      nodeErr.Error(),
	})

	c.failExecution(ctx, r, *stepErr)
}

// failExecution transitions the execution to failed, records the error,
// notifies the triggering actor and releases the runner. Guarded against
// double entry so escalation happens exactly once.
func (c *Controller) failExecution(ctx context.Context, r *runner, execErr models.ExecutionError) {
	r.mu.Lock()

	if r.execution.Status.IsTerminal() {
		r.mu.Unlock()

		return
	}

	now := time.Now().UTC()
	r.execution.Status = models.ExecutionStatusFailed
	r.execution.EndTime = &now

	if r.execution.StartTime != nil {
		r.execution.Duration = now.Sub(*r.execution.StartTime)
	}

	r.execution.AppendError(execErr)
	r.execution.AppendLog("error", "Execution failed: "+execErr.Message, execErr.NodeID, nil)
	c.persist(ctx, r.execution)
	durationMs := r.execution.Duration.Milliseconds()
	r.mu.Unlock()

	c.logger.Error("Execution failed",
		"execution_id", r.execution.ID,
		"node_id", execErr.NodeID,
		"code", execErr.Code,
		"error", execErr.Message,
	)

	if c.notifier != nil {
		err := c.notifier.Send(ctx, protocol.Notification{
			Recipient: r.execution.TriggeredBy,
			Kind:      "workflow_failed",
			Title:     "Workflow failed",
			Message:   "Workflow execution " + r.execution.ID + " failed: " + execErr.Message,
			Priority:  "high",
			Data: map[string]any{
				"execution_id": r.execution.ID,
				"template_id":  r.execution.TemplateID,
				"node_id":      execErr.NodeID,
				"code":         execErr.Code,
			},
		})
		if err != nil {
			c.logger.Warn("Failed to send failure notification", "execution_id", r.execution.ID, "error", err)
		}
	}

	c.publish(ctx, r.execution.ID, events.ExecutionFailed{
		BaseEvent:  events.NewBaseEvent(events.ExecutionFailedEvent, r.execution.TemplateID, r.execution.ID),
		NodeID:     execErr.NodeID,
		Code:       execErr.Code,
		Error:      execErr.Message,
		DurationMs: durationMs,
	})

	c.release(r)
	c.drainQueue()
}
