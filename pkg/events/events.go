// Package events defines the typed events the engine pushes to the real-time
// broadcaster over the event bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/flowengine/pkg/models"
)

type EventType string

// Topic carries every engine event; consumers filter on the event_type
// message metadata.
const Topic = "flowengine.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionProgressEvent  EventType = "execution.progress"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionQueuedEvent    EventType = "execution.queued"
	StepUpdatedEvent        EventType = "execution.step.updated"
	ApprovalRequestedEvent  EventType = "execution.approval.requested"
	ApprovalDecidedEvent    EventType = "execution.approval.decided"
	NotificationEvent       EventType = "notification"
)

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	TemplateID  string    `json:"template_id"`
	ExecutionID string    `json:"execution_id"`
}

func NewBaseEvent(eventType EventType, templateID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		TemplateID:  templateID,
		ExecutionID: executionID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	TriggeredBy string         `json:"triggered_by"`
	Variables   map[string]any `json:"variables,omitempty"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionProgress struct {
	BaseEvent

	Progress    int     `json:"progress"`
	CurrentStep *string `json:"current_step,omitempty"`
}

func (e ExecutionProgress) GetType() EventType { return ExecutionProgressEvent }

type ExecutionCompleted struct {
	BaseEvent

	DurationMs     int64 `json:"duration_ms"`
	StepsCompleted int   `json:"steps_completed"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	NodeID     string `json:"node_id,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionCancelled struct {
	BaseEvent

	CancelledBy string `json:"cancelled_by,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }

type ExecutionPaused struct {
	BaseEvent

	PausedAtStep *string `json:"paused_at_step,omitempty"`
}

func (e ExecutionPaused) GetType() EventType { return ExecutionPausedEvent }

type ExecutionResumed struct {
	BaseEvent

	ResumedAtStep *string `json:"resumed_at_step,omitempty"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type ExecutionQueued struct {
	BaseEvent

	QueuePosition int `json:"queue_position"`
}

func (e ExecutionQueued) GetType() EventType { return ExecutionQueuedEvent }

type StepUpdated struct {
	BaseEvent

	NodeID     string            `json:"node_id"`
	Status     models.StepStatus `json:"status"`
	RetryCount int               `json:"retry_count"`
	Error      string            `json:"error,omitempty"`
}

func (e StepUpdated) GetType() EventType { return StepUpdatedEvent }

type ApprovalRequested struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	Approver string `json:"approver"`
	Message  string `json:"message,omitempty"`
}

func (e ApprovalRequested) GetType() EventType { return ApprovalRequestedEvent }

type ApprovalDecided struct {
	BaseEvent

	NodeID     string `json:"node_id"`
	ApproverID string `json:"approver_id"`
	Decision   string `json:"decision"`
	Comment    string `json:"comment,omitempty"`
}

func (e ApprovalDecided) GetType() EventType { return ApprovalDecidedEvent }

// Notification is the fire-and-forget payload the engine hands to the
// notification dispatcher; delivery channels consume it downstream.
type Notification struct {
	BaseEvent

	Recipient string         `json:"recipient"`
	Sender    string         `json:"sender,omitempty"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  string         `json:"priority,omitempty"`
	Channels  []string       `json:"channels,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func (e Notification) GetType() EventType { return NotificationEvent }
