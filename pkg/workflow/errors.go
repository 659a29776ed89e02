package workflow

import "errors"

// Admission and lifecycle errors. These are synchronous and non-retryable.
var (
	ErrNotStartable       = errors.New("execution is not in a startable status")
	ErrNotPausable        = errors.New("execution is not running")
	ErrNotResumable       = errors.New("execution is not paused")
	ErrAlreadyTerminal    = errors.New("execution already reached a terminal status")
	ErrNotWaitingApproval = errors.New("step is not waiting for approval")
	ErrApproverMismatch   = errors.New("approver does not match the step's configured approver")
	ErrInvalidDecision    = errors.New("decision must be approved or rejected")
)
