package models

import (
	"time"
)

// ExecutionStatus represents the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepStatus represents the state of a single node within an execution.
type StepStatus string

const (
	StepStatusPending         StepStatus = "pending"
	StepStatusRunning         StepStatus = "running"
	StepStatusCompleted       StepStatus = "completed"
	StepStatusFailed          StepStatus = "failed"
	StepStatusWaitingApproval StepStatus = "waiting_approval"
)

// Approval records one approver's decision on an approval step.
type Approval struct {
	ApproverID string    `json:"approver_id"`
	Decision   string    `json:"decision"` // "approved" or "rejected"
	Comment    string    `json:"comment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	ApprovalDecisionApproved = "approved"
	ApprovalDecisionRejected = "rejected"
)

// StepState tracks progress and result of one node in an execution.
type StepState struct {
	NodeID      string          `json:"node_id"`
	Status      StepStatus      `json:"status"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Duration    time.Duration   `json:"duration,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       *ExecutionError `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	Approvals   []Approval      `json:"approvals,omitempty"`
}

// ExecutionError is a structured error payload recorded against a step or the
// execution as a whole.
type ExecutionError struct {
	NodeID    string         `json:"node_id,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// Error codes recorded on execution errors.
const (
	ErrCodeApprovalRejected = "APPROVAL_REJECTED"
	ErrCodeApprovalTimeout  = "APPROVAL_TIMEOUT"
	ErrCodeRetriesExhausted = "RETRIES_EXHAUSTED"
	ErrCodeNodeNotFound     = "NODE_NOT_FOUND"
)

// LogEntry is one line of the execution's append-only log.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	NodeID    string         `json:"node_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Execution is one run of a template with its own variables, step states and
// lifecycle status.
type Execution struct {
	ID          string           `json:"id"`
	TemplateID  string           `json:"template_id"`
	TriggeredBy string           `json:"triggered_by"`
	Status      ExecutionStatus  `json:"status"`
	CurrentStep *string          `json:"current_step,omitempty"`
	Steps       []*StepState     `json:"steps"`
	Variables   map[string]any   `json:"variables"`
	Context     map[string]any   `json:"context"` // Read-only invocation metadata, substitution only
	Progress    int              `json:"progress"`
	StartTime   *time.Time       `json:"start_time,omitempty"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
	Duration    time.Duration    `json:"duration,omitempty"`
	Errors      []ExecutionError `json:"errors,omitempty"`
	Logs        []LogEntry       `json:"logs,omitempty"`
}

// Step returns the StepState for the given node, if one exists.
func (e *Execution) Step(nodeID string) (*StepState, bool) {
	for _, step := range e.Steps {
		if step.NodeID == nodeID {
			return step, true
		}
	}

	return nil, false
}

// EnsureStep returns the StepState for the given node, appending a pending
// one if the node has not been entered before.
func (e *Execution) EnsureStep(nodeID string) *StepState {
	if step, ok := e.Step(nodeID); ok {
		return step
	}

	step := &StepState{
		NodeID: nodeID,
		Status: StepStatusPending,
	}
	e.Steps = append(e.Steps, step)

	return step
}

// RecomputeProgress derives progress from completed steps over the total node
// count. Progress never decreases while the execution is running.
func (e *Execution) RecomputeProgress(totalNodes int) {
	if totalNodes <= 0 {
		return
	}

	completed := 0

	for _, step := range e.Steps {
		if step.Status == StepStatusCompleted {
			completed++
		}
	}

	progress := completed * 100 / totalNodes
	if progress > 100 {
		progress = 100
	}

	if progress > e.Progress {
		e.Progress = progress
	}
}

// AppendLog appends one entry to the execution log.
func (e *Execution) AppendLog(level, message, nodeID string, data map[string]any) {
	e.Logs = append(e.Logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		NodeID:    nodeID,
		Data:      data,
	})
}

// AppendError records an execution-level error.
func (e *Execution) AppendError(execErr ExecutionError) {
	if execErr.Timestamp.IsZero() {
		execErr.Timestamp = time.Now().UTC()
	}

	e.Errors = append(e.Errors, execErr)
}
