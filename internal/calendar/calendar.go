// Package calendar is the owner's agenda: busy intervals in, booked events out.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/outcome"
)

// ErrNotConfigured is the reason reported by Unconfigured.
var ErrNotConfigured = errors.New("calendar: not configured")

// Event is a calendar entry the assistant creates (appointment or reminder).
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	// Transparent events do not block availability (reminders).
	Transparent bool
}

// Calendar is consumed by the conversation engine. Neither call panics or
// returns a Go error; failures are reported as outcome variants.
type Calendar interface {
	ListBusyIntervals(ctx context.Context, from, to time.Time) outcome.Result[[]availability.Interval]
	CreateEvent(ctx context.Context, event Event) outcome.Result[string]
}

// Unconfigured answers Unavailable to every call. Used when no credentials are set.
type Unconfigured struct{}

func (Unconfigured) ListBusyIntervals(context.Context, time.Time, time.Time) outcome.Result[[]availability.Interval] {
	return outcome.Unavailable[[]availability.Interval](ErrNotConfigured)
}

func (Unconfigured) CreateEvent(context.Context, Event) outcome.Result[string] {
	return outcome.Unavailable[string](ErrNotConfigured)
}

func validateEvent(event Event) error {
	if !event.Start.Before(event.End) {
		return errors.New("calendar: event start must precede end")
	}
	return nil
}
