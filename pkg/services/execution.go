package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/persistence"
	"github.com/taskhive/flowengine/pkg/workflow"
)

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// Execution fronts the engine controller for the API layer, translating
// lifecycle errors into service errors.
type Execution struct {
	persistence persistence.Persistence
	controller  *workflow.Controller
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, controller *workflow.Controller) *Execution {
	return &Execution{
		persistence: persistence,
		controller:  controller,
	}
}

// Create instantiates a template into a pending execution.
func (s *Execution) Create(ctx context.Context, templateID, triggeredBy string, variables map[string]any) (*models.Execution, error) {
	return s.controller.CreateExecution(ctx, templateID, triggeredBy, variables)
}

// Start admits the execution or queues it at the concurrency ceiling.
func (s *Execution) Start(ctx context.Context, executionID string) (workflow.StartOutcome, error) {
	outcome, err := s.controller.StartExecution(ctx, executionID)
	if err != nil {
		return "", translate(err)
	}

	return outcome, nil
}

// Pause suspends a running execution.
func (s *Execution) Pause(ctx context.Context, executionID string) error {
	return translate(s.controller.PauseExecution(ctx, executionID))
}

// Resume re-admits a paused execution.
func (s *Execution) Resume(ctx context.Context, executionID string) (workflow.StartOutcome, error) {
	outcome, err := s.controller.ResumeExecution(ctx, executionID)
	if err != nil {
		return "", translate(err)
	}

	return outcome, nil
}

// Cancel terminates a non-terminal execution.
func (s *Execution) Cancel(ctx context.Context, executionID string) error {
	return translate(s.controller.CancelExecution(ctx, executionID))
}

// Status returns the live or stored snapshot of an execution.
func (s *Execution) Status(ctx context.Context, executionID string) (*workflow.Status, error) {
	return s.controller.GetExecutionStatus(ctx, executionID)
}

// RecordApproval applies a human decision to a waiting approval step.
func (s *Execution) RecordApproval(ctx context.Context, executionID, nodeID, approverID, decision, comment string) error {
	return translate(s.controller.RecordApprovalResponse(ctx, executionID, nodeID, approverID, decision, comment))
}

// ListByTemplate retrieves the executions instantiated from a template.
func (s *Execution) ListByTemplate(ctx context.Context, templateID string) ([]*models.Execution, error) {
	return s.persistence.ExecutionRepository().ListByTemplate(ctx, templateID)
}

// translate maps engine lifecycle errors onto service errors so the API
// layer can pick response codes without importing the engine.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, workflow.ErrNotStartable):
		return fmt.Errorf("%w: %w", ErrExecutionNotStartable, err)
	case errors.Is(err, workflow.ErrNotPausable):
		return fmt.Errorf("%w: %w", ErrExecutionNotPausable, err)
	case errors.Is(err, workflow.ErrNotResumable):
		return fmt.Errorf("%w: %w", ErrExecutionNotResumable, err)
	case errors.Is(err, workflow.ErrAlreadyTerminal):
		return fmt.Errorf("%w: %w", ErrExecutionTerminal, err)
	case errors.Is(err, workflow.ErrNotWaitingApproval):
		return fmt.Errorf("%w: %w", ErrNoApprovalPending, err)
	case errors.Is(err, workflow.ErrApproverMismatch):
		return fmt.Errorf("%w: %w", ErrApproverMismatch, err)
	case errors.Is(err, workflow.ErrInvalidDecision):
		return NewValidationError("approval", "INVALID_DECISION", err.Error(), ErrInvalidRequest)
	default:
		return err
	}
}
