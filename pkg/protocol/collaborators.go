package protocol

import (
	"context"
	"net/http"
	"time"
)

// TaskInput is the record a task node asks the task store to create.
type TaskInput struct {
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Priority      string         `json:"priority,omitempty"`
	Project       string         `json:"project,omitempty"`
	AssignedTo    string         `json:"assigned_to"`
	AssignedBy    string         `json:"assigned_by"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	ScheduledDate *time.Time     `json:"scheduled_date,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskRef identifies a created task record.
type TaskRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TaskStore is the external task record store consumed by task nodes.
type TaskStore interface {
	Create(ctx context.Context, input TaskInput) (TaskRef, error)
}

// Notification is a fire-and-forget message to a platform user.
type Notification struct {
	Recipient string         `json:"recipient"`
	Sender    string         `json:"sender,omitempty"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  string         `json:"priority,omitempty"`
	Channels  []string       `json:"channels,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NotificationDispatcher hands notifications to the delivery layer. Dispatch
// is fire-and-forget: the engine never awaits delivery confirmation.
type NotificationDispatcher interface {
	Send(ctx context.Context, notification Notification) error
}

// HTTPDoer is the outbound HTTP client consumed by api_call nodes.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
