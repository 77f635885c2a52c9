// Package notify alerts operators about venue connection changes. Events are
// dispatched to every registered sender (Telegram, Discord) and filtered by
// event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradesim/internal/domain"
)

// Event types the notifier emits.
const (
	EventVenueDisconnected = "venue_disconnected"
	EventVenueReconnected  = "venue_reconnected"
)

// sendTimeout bounds each fire-and-forget delivery.
const sendTimeout = 10 * time.Second

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches events to one or more Senders. Delivery is
// fire-and-forget; sender failures are logged and never propagated to feed
// code paths.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier delivering to the given senders. Only events whose
// type appears in events are forwarded; an empty list allows all types.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// VenueDisconnected reports that a venue feed dropped and entered its retry
// loop.
func (n *Notifier) VenueDisconnected(venue domain.Venue, symbol string) {
	n.emit(EventVenueDisconnected, "Venue feed lost",
		fmt.Sprintf("%s %s disconnected; reconnecting", venue, symbol))
}

// VenueReconnected reports that a venue feed recovered after an outage.
func (n *Notifier) VenueReconnected(venue domain.Venue, symbol string) {
	n.emit(EventVenueReconnected, "Venue feed restored",
		fmt.Sprintf("%s %s resubscribed", venue, symbol))
}

// emit applies the event filter and delivers asynchronously.
func (n *Notifier) emit(event, title, message string) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("event filtered out", slog.String("event", event))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		n.dispatch(ctx, title, message)
	}()
}

// dispatch delivers to every sender; one failing sender never blocks the
// rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}
