// Package notify provides notification dispatcher implementations. Dispatch
// is fire-and-forget: delivery channels consume the published events
// downstream and the engine never awaits confirmation.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/taskhive/flowengine/pkg/eventbus"
	"github.com/taskhive/flowengine/pkg/events"
	"github.com/taskhive/flowengine/pkg/protocol"
)

// BusDispatcher publishes notifications onto the event bus.
type BusDispatcher struct {
	bus    eventbus.EventPublisher
	logger *slog.Logger
}

func NewBusDispatcher(bus eventbus.EventPublisher, logger *slog.Logger) *BusDispatcher {
	return &BusDispatcher{
		bus:    bus,
		logger: logger.With("module", "notify"),
	}
}

func (d *BusDispatcher) Send(ctx context.Context, notification protocol.Notification) error {
	event := events.Notification{
		BaseEvent: events.NewBaseEvent(events.NotificationEvent, "", ""),
		Recipient: notification.Recipient,
		Sender:    notification.Sender,
		Kind:      notification.Kind,
		Title:     notification.Title,
		Message:   notification.Message,
		Priority:  notification.Priority,
		Channels:  notification.Channels,
		Data:      notification.Data,
	}

	err := d.bus.Publish(ctx, notification.Recipient, event)
	if err != nil {
		d.logger.Warn("Failed to publish notification", "recipient", notification.Recipient, "error", err)

		return err
	}

	return nil
}

// LogDispatcher writes notifications to the logger. Useful in development.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("module", "notify")}
}

func (d *LogDispatcher) Send(_ context.Context, notification protocol.Notification) error {
	d.logger.Info("Notification",
		"recipient", notification.Recipient,
		"kind", notification.Kind,
		"title", notification.Title,
		"message", notification.Message,
	)

	return nil
}

// RecordingDispatcher captures notifications for assertions in tests.
type RecordingDispatcher struct {
	mu            sync.Mutex
	notifications []protocol.Notification
}

func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{}
}

func (d *RecordingDispatcher) Send(_ context.Context, notification protocol.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.notifications = append(d.notifications, notification)

	return nil
}

func (d *RecordingDispatcher) Sent() []protocol.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]protocol.Notification, len(d.notifications))
	copy(out, d.notifications)

	return out
}
