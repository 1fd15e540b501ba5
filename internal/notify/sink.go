package notify

import (
	"context"
	"log/slog"
	"time"
)

// Kinds of notification passed to a Sink.
const (
	KindImmediate = "immediate"
	KindReminder  = "reminder"
)

// Notification is a displayed notification handed to the sinks.
type Notification struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id,omitempty"`
	ChannelID string    `json:"channel_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
}

// Sink displays notifications somewhere a user will see them.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogSink writes every notification to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, n Notification) error {
	s.Logger.InfoContext(ctx, "notification displayed",
		"kind", n.Kind,
		"id", n.ID,
		"channel", n.ChannelID,
		"title", n.Title,
		"body", n.Body,
	)
	return nil
}
