// Package availability computes open appointment slots from busy calendar intervals.
package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Interval is a busy window taken from the calendar, half-open [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Slot is a candidate appointment window.
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	TimeZone string    `json:"time_zone"`
}

// Overlaps reports whether the slot intersects the interval. Touching
// boundaries are not a conflict.
func (s Slot) Overlaps(iv Interval) bool {
	return s.Start.Before(iv.End) && s.End.After(iv.Start)
}

// Hours describes the owner's bookable window.
type Hours struct {
	StartHour int
	EndHour   int
	Days      []time.Weekday
	Location  *time.Location
}

// DefaultHours is 09:00-18:00 Monday to Friday.
func DefaultHours(loc *time.Location) Hours {
	if loc == nil {
		loc = time.UTC
	}
	return Hours{
		StartHour: 9,
		EndHour:   18,
		Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Location:  loc,
	}
}

func (h Hours) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// IsBusinessDay reports whether d is one of the configured days.
func (h Hours) IsBusinessDay(d time.Weekday) bool {
	for _, day := range h.Days {
		if day == d {
			return true
		}
	}
	return false
}

// Contains reports whether t falls inside business hours on a business day.
func (h Hours) Contains(t time.Time) bool {
	local := t.In(h.location())
	if !h.IsBusinessDay(local.Weekday()) {
		return false
	}
	return local.Hour() >= h.StartHour && local.Hour() < h.EndHour
}

// Query parameterizes AvailableSlots.
type Query struct {
	Now         time.Time
	DaysAhead   int
	SlotMinutes int
	Hours       Hours
	// Limit caps the number of returned slots; zero means no cap.
	Limit int
}

// AvailableSlots returns open slots in chronological order. It performs no I/O:
// callers pass the busy intervals they already fetched.
func AvailableSlots(events []Interval, q Query) []Slot {
	if q.DaysAhead <= 0 || q.SlotMinutes <= 0 || q.Hours.EndHour <= q.Hours.StartHour {
		return nil
	}
	loc := q.Hours.location()
	now := q.Now.In(loc)
	step := time.Duration(q.SlotMinutes) * time.Minute

	busy := make([]Interval, 0, len(events))
	for _, ev := range events {
		// Point events still block the slot that strictly contains them.
		if !ev.End.Before(ev.Start) {
			busy = append(busy, ev)
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	var slots []Slot
	for d := 0; d < q.DaysAhead; d++ {
		day := time.Date(now.Year(), now.Month(), now.Day()+d, 0, 0, 0, 0, loc)
		if !q.Hours.IsBusinessDay(day.Weekday()) {
			continue
		}
		open := time.Date(day.Year(), day.Month(), day.Day(), q.Hours.StartHour, 0, 0, 0, loc)
		closing := time.Date(day.Year(), day.Month(), day.Day(), q.Hours.EndHour, 0, 0, 0, loc)

		for start := open; !start.Add(step).After(closing); start = start.Add(step) {
			if !start.After(now) {
				continue
			}
			slot := Slot{Start: start, End: start.Add(step), TimeZone: loc.String()}
			if conflicts(slot, busy) {
				continue
			}
			slots = append(slots, slot)
			if q.Limit > 0 && len(slots) >= q.Limit {
				return slots
			}
		}
	}
	return slots
}

// conflicts expects busy sorted by start. Once an interval starts at or after
// slot.End no later one can overlap, point events included.
func conflicts(slot Slot, busy []Interval) bool {
	for _, iv := range busy {
		if !iv.Start.Before(slot.End) {
			return false
		}
		if slot.Overlaps(iv) {
			return true
		}
	}
	return false
}

// Earliest returns the chronologically first slot.
func Earliest(slots []Slot) (Slot, bool) {
	if len(slots) == 0 {
		return Slot{}, false
	}
	best := slots[0]
	for _, s := range slots[1:] {
		if s.Start.Before(best.Start) {
			best = s
		}
	}
	return best, true
}

var spanishDays = [...]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}

// FormatSlot renders a slot for an SMS body, e.g. "lun 20/10 a las 09:00".
func FormatSlot(s Slot) string {
	return fmt.Sprintf("%s %s a las %s", spanishDays[s.Start.Weekday()], s.Start.Format("02/01"), s.Start.Format("15:04"))
}

// FormatOptions renders up to max slots as a numbered list.
func FormatOptions(slots []Slot, max int) string {
	if max <= 0 || max > len(slots) {
		max = len(slots)
	}
	var b strings.Builder
	for i, s := range slots[:max] {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d) %s", i+1, FormatSlot(s))
	}
	return b.String()
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	"dom": time.Sunday, "lun": time.Monday, "mar": time.Tuesday, "mie": time.Wednesday,
	"jue": time.Thursday, "vie": time.Friday, "sab": time.Saturday,
}

// ParseWeekdays parses a comma separated list such as "mon,tue,wed". Full
// English or unaccented Spanish day names are accepted. Unknown entries are
// reported as an error.
func ParseWeekdays(raw string) ([]time.Weekday, error) {
	var days []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, part := range strings.Split(raw, ",") {
		key := strings.ToLower(strings.TrimSpace(part))
		if key == "" {
			continue
		}
		if len(key) > 3 {
			key = key[:3]
		}
		day, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("availability: unknown weekday %q", part)
		}
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	return days, nil
}
