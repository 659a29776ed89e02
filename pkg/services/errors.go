// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrTemplateNameRequired = errors.New("template name is required")
	ErrNodesRequired        = errors.New("template must have at least one node")
	ErrTemplateNil          = errors.New("template cannot be nil")
	ErrInvalidNodeConfig    = errors.New("invalid node configuration")

	// Business logic conflicts (409 Conflict).
	ErrExecutionNotStartable = errors.New("execution cannot be started in its current status")
	ErrExecutionNotPausable  = errors.New("execution cannot be paused in its current status")
	ErrExecutionNotResumable = errors.New("execution cannot be resumed in its current status")
	ErrExecutionTerminal     = errors.New("execution already finished")
	ErrNoApprovalPending     = errors.New("no approval pending for this step")
	ErrApproverMismatch      = errors.New("approver is not authorized for this step")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTemplateNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrInvalidNodeConfig)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrExecutionNotStartable) ||
		errors.Is(err, ErrExecutionNotPausable) ||
		errors.Is(err, ErrExecutionNotResumable) ||
		errors.Is(err, ErrExecutionTerminal) ||
		errors.Is(err, ErrNoApprovalPending) ||
		errors.Is(err, ErrApproverMismatch)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
