// Package notify pushes opportunity lifecycle alerts to chat channels.
// A Notifier fans one alert out to every configured sender and filters
// by event name so operators can subscribe to opens, closes, or both.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one formatted alert to a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Notifier fans alerts out to its senders. Events outside the configured
// allow-list are dropped before any network call.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert when its event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers the alert to every sender regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one channel failing never blocks the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
