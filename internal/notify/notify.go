// Package notify turns queue events into user-visible notices.
package notify

import (
	"context"
	"fmt"
	"time"

	"bookingsync/internal/events"
	"bookingsync/internal/logging"

	"github.com/rs/zerolog"
)

// Notice is one message for the user or operator.
type Notice struct {
	Kind string
	Text string
}

// Notifier delivers notices. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to the log.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.Component(logger, "notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n Notice) error {
	l.logger.Info().Str("kind", n.Kind).Msg(n.Text)
	return nil
}

// Multi fans a notice out to every notifier and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var first error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

const sendTimeout = 10 * time.Second

// Subscribe delivers a notice for every booking and network event on bus.
// Delivery runs in its own goroutine so a slow notifier never holds up a sync pass.
func Subscribe(bus *events.EventBus, n Notifier, logger *zerolog.Logger) {
	log := logging.Component(logger, "notify")
	for _, eventType := range []string{
		events.EventBookingQueued,
		events.EventBookingSynced,
		events.EventBookingRetryScheduled,
		events.EventBookingFailed,
		events.EventNetworkChanged,
	} {
		bus.Subscribe(eventType, func(e *events.Event) error {
			notice, err := Render(e)
			if err != nil {
				log.Warn().Err(err).Str("event", e.Type).Msg("Cannot render notice")
				return err
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
				defer cancel()
				if err := n.Notify(ctx, notice); err != nil {
					log.Warn().Err(err).Str("kind", notice.Kind).Msg("Notice not delivered")
				}
			}()
			return nil
		})
	}
}

// Render builds the notice text for an event.
func Render(e *events.Event) (Notice, error) {
	if e.Type == events.EventNetworkChanged {
		var p events.NetworkEventPayload
		if err := e.Decode(&p); err != nil {
			return Notice{}, fmt.Errorf("decode %s: %w", e.Type, err)
		}
		if p.Status == "online" {
			return Notice{Kind: e.Type, Text: "Back online. Sending saved bookings"}, nil
		}
		return Notice{Kind: e.Type, Text: "You are offline. New bookings will be saved and sent later"}, nil
	}

	var p events.BookingEventPayload
	if err := e.Decode(&p); err != nil {
		return Notice{}, fmt.Errorf("decode %s: %w", e.Type, err)
	}
	what := fmt.Sprintf("%s on %s at %s", p.ServiceName, p.Date, p.TimeSlot)

	var text string
	switch e.Type {
	case events.EventBookingQueued:
		text = fmt.Sprintf("Booking saved offline: %s", what)
	case events.EventBookingSynced:
		text = fmt.Sprintf("Booking confirmed: %s (booking %s)", what, p.ServerID)
	case events.EventBookingRetryScheduled:
		text = fmt.Sprintf("Booking failed, retrying: %s (attempt %d)", what, p.Attempt)
		if p.NextAttempt != nil {
			text += ", next try " + p.NextAttempt.Local().Format("15:04")
		}
	case events.EventBookingFailed:
		text = fmt.Sprintf("Booking could not be sent after %d attempts: %s. Please book again", p.Attempt, what)
	default:
		return Notice{}, fmt.Errorf("no notice for event %s", e.Type)
	}
	if p.Phone != "" {
		text += " [" + p.Phone + "]"
	}
	return Notice{Kind: e.Type, Text: text}, nil
}
