// Package notify carries everything that leaves the process as a message:
// the subscriber-facing Telegram alert sink, the alert HTML builder, and a
// multi-channel operator notifier for lifecycle and failure events.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event classifies an operator notification so deployments can subscribe to
// a subset of them.
type Event string

const (
	// EventStartup fires once when the worker begins polling.
	EventStartup Event = "startup"
	// EventShutdown fires when the worker stops cleanly.
	EventShutdown Event = "shutdown"
	// EventDeactivation fires when the dispatcher deactivates a destination
	// after a permanent provider rejection.
	EventDeactivation Event = "deactivation"
	// EventArchive fires when the housekeeper finishes an archival run.
	EventArchive Event = "archive"
)

// Sender is the interface each operator channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier for the channel (e.g. "telegram").
	Name() string
}

// Notifier fans operator notifications out to every configured channel.
// Notify forwards only events in the allowed set; an empty set allows all.
type Notifier struct {
	senders []Sender
	events  map[Event]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. events
// lists the Event kinds to forward; pass nil to forward everything.
func NewNotifier(senders []Sender, events []Event, logger *slog.Logger) *Notifier {
	allowed := make(map[Event]bool, len(events))
	for _, e := range events {
		allowed[Event(strings.TrimSpace(string(e)))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all channels if the event kind is allowed.
func (n *Notifier) Notify(ctx context.Context, event Event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", string(event)),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all channels regardless of event kind.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one channel failing does not stop
// delivery to the rest. Failures are combined into a single error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
