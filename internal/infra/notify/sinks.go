package notify

import (
	"context"

	"nudge/internal/app/reminder"
	"nudge/internal/shared/logging"
)

// Sink receives notifications as they fire.
type Sink interface {
	Deliver(ctx context.Context, n reminder.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n reminder.Notification) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, n reminder.Notification) error {
	return f(ctx, n)
}

// LogSink writes fired notifications to a logger.
type LogSink struct {
	Logger logging.Logger
}

// Deliver logs n.
func (s LogSink) Deliver(_ context.Context, n reminder.Notification) error {
	logging.OrNop(s.Logger).Info("🔔 %s: %s", n.Title, n.Body)
	return nil
}
