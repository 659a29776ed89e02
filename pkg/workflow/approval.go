package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskhive/flowengine/pkg/events"
	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/nodes/approval"
)

// RecordApprovalResponse resumes an execution parked on an approval step.
// The approver must match the node config; approval completes the step and
// traversal continues, rejection fails the execution without retries.
func (c *Controller) RecordApprovalResponse(ctx context.Context, executionID, nodeID, approverID, decision, comment string) error {
	if decision != models.ApprovalDecisionApproved && decision != models.ApprovalDecisionRejected {
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	c.mu.Lock()
	r, ok := c.running[executionID]
	c.mu.Unlock()

	if !ok {
		// Executions waiting for approval stay in the running set; anything
		// else has no suspended step to decide on.
		return fmt.Errorf("%w: execution %s has no active approval", ErrNotWaitingApproval, executionID)
	}

	r.mu.Lock()

	step, found := r.execution.Step(nodeID)
	if !found || step.Status != models.StepStatusWaitingApproval {
		r.mu.Unlock()

		return fmt.Errorf("%w: node %s", ErrNotWaitingApproval, nodeID)
	}

	node, found := r.template.Node(nodeID)
	if !found {
		r.mu.Unlock()

		return fmt.Errorf("%w: node %s", ErrNotWaitingApproval, nodeID)
	}

	if expected := approval.Approver(node); expected != "" && expected != approverID {
		r.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrApproverMismatch, approverID)
	}

	step.Approvals = append(step.Approvals, models.Approval{
		ApproverID: approverID,
		Decision:   decision,
		Comment:    comment,
		Timestamp:  time.Now().UTC(),
	})

	if decision == models.ApprovalDecisionRejected {
		now := time.Now().UTC()
		step.Status = models.StepStatusFailed
		step.CompletedAt = &now

		if step.StartedAt != nil {
			step.Duration = now.Sub(*step.StartedAt)
		}

		step.Error = &models.ExecutionError{
			NodeID:    nodeID,
			Code:      models.ErrCodeApprovalRejected,
			Message:   "approval rejected by " + approverID,
			Timestamp: now,
		}
		r.mu.Unlock()

		c.publish(ctx, executionID, events.ApprovalDecided{
			BaseEvent:  events.NewBaseEvent(events.ApprovalDecidedEvent, r.execution.TemplateID, executionID),
			NodeID:     nodeID,
			ApproverID: approverID,
			Decision:   decision,
			Comment:    comment,
		})

		c.failExecution(ctx, r, *step.Error)

		return nil
	}

	resultCtx := map[string]any{
		"approved": true,
		"result":   true,
	}

	c.completeStep(step, resultCtx)
	r.execution.RecomputeProgress(len(r.template.Nodes))
	r.execution.AppendLog("info", "Approval granted by "+approverID, nodeID, nil)
	c.persist(ctx, r.execution)
	r.mu.Unlock()

	c.publish(ctx, executionID, events.ApprovalDecided{
		BaseEvent:  events.NewBaseEvent(events.ApprovalDecidedEvent, r.execution.TemplateID, executionID),
		NodeID:     nodeID,
		ApproverID: approverID,
		Decision:   decision,
		Comment:    comment,
	})
	c.publish(ctx, executionID, events.StepUpdated{
		BaseEvent: events.NewBaseEvent(events.StepUpdatedEvent, r.execution.TemplateID, executionID),
		NodeID:    nodeID,
		Status:    models.StepStatusCompleted,
	})

	c.logger.Info("Approval recorded",
		"execution_id", executionID,
		"node_id", nodeID,
		"approver", approverID,
		"decision", decision,
	)

	c.processNextNodes(ctx, r, nodeID, resultCtx)

	return nil
}

// StartMaintenance runs the periodic sweeps: stale approval expiry and queue
// draining. The returned cron is already started; callers stop it on
// shutdown.
func (c *Controller) StartMaintenance() (*cron.Cron, error) {
	scheduler := cron.New()

	_, err := scheduler.AddFunc("@every 30s", func() {
		c.sweepApprovals(context.Background())
		c.drainQueue()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule maintenance sweep: %w", err)
	}

	scheduler.Start()

	return scheduler, nil
}

// sweepApprovals fails approval steps that waited longer than the configured
// timeout. Disabled when the timeout is zero.
func (c *Controller) sweepApprovals(ctx context.Context) {
	if c.cfg.ApprovalTimeout <= 0 {
		return
	}

	c.mu.Lock()
	runners := make([]*runner, 0, len(c.running))

	for _, r := range c.running {
		runners = append(runners, r)
	}
	c.mu.Unlock()

	cutoff := time.Now().UTC().Add(-c.cfg.ApprovalTimeout)

	for _, r := range runners {
		r.mu.Lock()

		var expired *models.StepState

		if r.execution.Status == models.ExecutionStatusRunning {
			for _, step := range r.execution.Steps {
				if step.Status == models.StepStatusWaitingApproval &&
					step.StartedAt != nil && step.StartedAt.Before(cutoff) {
					expired = step

					break
				}
			}
		}

		if expired == nil {
			r.mu.Unlock()

			continue
		}

		now := time.Now().UTC()
		expired.Status = models.StepStatusFailed
		expired.CompletedAt = &now
		expired.Error = &models.ExecutionError{
			NodeID:    expired.NodeID,
			Code:      models.ErrCodeApprovalTimeout,
			Message:   "approval timed out after " + c.cfg.ApprovalTimeout.String(),
			Timestamp: now,
		}
		stepErr := *expired.Error
		r.mu.Unlock()

		c.logger.Warn("Approval timed out",
			"execution_id", r.execution.ID,
			"node_id", stepErr.NodeID,
			"timeout", c.cfg.ApprovalTimeout,
		)

		c.failExecution(ctx, r, stepErr)
	}
}
