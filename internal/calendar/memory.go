package calendar

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/outcome"
)

// ErrSlotTaken is reported when an event would overlap an existing one.
var ErrSlotTaken = errors.New("calendar: time range already booked")

// MemoryCalendar keeps events in process. It rejects overlapping bookings the
// way a shared calendar would resolve a race between two senders.
type MemoryCalendar struct {
	mu     sync.Mutex
	events map[string]Event
}

func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{events: make(map[string]Event)}
}

func (m *MemoryCalendar) ListBusyIntervals(ctx context.Context, from, to time.Time) outcome.Result[[]availability.Interval] {
	if err := ctx.Err(); err != nil {
		return outcome.Unavailable[[]availability.Interval](err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var busy []availability.Interval
	for _, ev := range m.events {
		if ev.Transparent {
			continue
		}
		if ev.Start.Before(to) && ev.End.After(from) {
			busy = append(busy, availability.Interval{Start: ev.Start, End: ev.End})
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return outcome.OK(busy)
}

func (m *MemoryCalendar) CreateEvent(ctx context.Context, event Event) outcome.Result[string] {
	if err := ctx.Err(); err != nil {
		return outcome.Unavailable[string](err)
	}
	if err := validateEvent(event); err != nil {
		return outcome.Failed[string](err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !event.Transparent {
		for _, ev := range m.events {
			if !ev.Transparent && event.Start.Before(ev.End) && event.End.After(ev.Start) {
				return outcome.Failed[string](ErrSlotTaken)
			}
		}
	}
	id := uuid.NewString()
	m.events[id] = event
	return outcome.OK(id)
}

// Events returns a snapshot of stored events ordered by start.
func (m *MemoryCalendar) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
