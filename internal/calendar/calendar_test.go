package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/outcome"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

func mexicoCity(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestBookedSlotIsNoLongerAvailable(t *testing.T) {
	loc := mexicoCity(t)
	ctx := context.Background()
	cal := NewMemoryCalendar()
	now := time.Date(2026, 10, 19, 7, 30, 0, 0, loc)
	query := availability.Query{
		Now:         now,
		DaysAhead:   1,
		SlotMinutes: 60,
		Hours:       availability.DefaultHours(loc),
	}

	busy := cal.ListBusyIntervals(ctx, now, now.AddDate(0, 0, 1))
	if !busy.Ok() {
		t.Fatalf("list: %v", busy.Err())
	}
	before := availability.AvailableSlots(busy.Value, query)
	if len(before) == 0 {
		t.Fatalf("expected free slots")
	}
	booked := before[0]

	created := cal.CreateEvent(ctx, Event{Summary: "Cita", Start: booked.Start, End: booked.End})
	if !created.Ok() || created.Value == "" {
		t.Fatalf("create: %#v", created)
	}

	busy = cal.ListBusyIntervals(ctx, now, now.AddDate(0, 0, 1))
	after := availability.AvailableSlots(busy.Value, query)
	for _, s := range after {
		if s.Start.Equal(booked.Start) {
			t.Fatalf("booked slot %v still offered", booked.Start)
		}
	}
	if len(after) != len(before)-1 {
		t.Fatalf("expected exactly one slot removed, got %d -> %d", len(before), len(after))
	}
}

func TestMemoryCalendarRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	cal := NewMemoryCalendar()
	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	if res := cal.CreateEvent(ctx, Event{Start: start, End: start.Add(time.Hour)}); !res.Ok() {
		t.Fatalf("first booking: %v", res.Err())
	}
	res := cal.CreateEvent(ctx, Event{Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute)})
	if res.Status != outcome.StatusFailed || !errors.Is(res.Reason, ErrSlotTaken) {
		t.Fatalf("expected overlap rejection, got %#v", res)
	}
	reminder := cal.CreateEvent(ctx, Event{Start: start, End: start.Add(30 * time.Minute), Transparent: true})
	if !reminder.Ok() {
		t.Fatalf("transparent reminder must not conflict: %v", reminder.Err())
	}
	busy := cal.ListBusyIntervals(ctx, start.Add(-time.Hour), start.Add(2*time.Hour))
	if len(busy.Value) != 1 {
		t.Fatalf("transparent events must not be busy, got %d intervals", len(busy.Value))
	}
	if res := cal.CreateEvent(ctx, Event{Start: start, End: start}); res.Status != outcome.StatusFailed {
		t.Fatalf("empty range must fail, got %s", res.Status)
	}
	if got := len(cal.Events()); got != 2 {
		t.Fatalf("expected 2 stored events, got %d", got)
	}
}

func TestUnconfigured(t *testing.T) {
	var cal Calendar = Unconfigured{}
	if res := cal.ListBusyIntervals(context.Background(), time.Now(), time.Now()); res.Status != outcome.StatusUnavailable {
		t.Fatalf("expected unavailable, got %s", res.Status)
	}
	if res := cal.CreateEvent(context.Background(), Event{}); !errors.Is(res.Err(), ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", res.Err())
	}
}

func newTestGoogle(t *testing.T, handler http.HandlerFunc) *GoogleCalendar {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := gcal.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return newGoogleCalendar(svc, GoogleConfig{CalendarID: "owner@example.com"}, logging.Discard())
}

func TestGoogleCalendarListAndCreate(t *testing.T) {
	var inserted gcal.Event
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/calendars/owner@example.com/events") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(gcal.Events{Items: []*gcal.Event{
				{Start: &gcal.EventDateTime{DateTime: "2026-10-19T10:00:00-06:00"}, End: &gcal.EventDateTime{DateTime: "2026-10-19T11:00:00-06:00"}},
				{Transparency: "transparent", Start: &gcal.EventDateTime{DateTime: "2026-10-19T12:00:00-06:00"}, End: &gcal.EventDateTime{DateTime: "2026-10-19T12:30:00-06:00"}},
				{Start: &gcal.EventDateTime{Date: "2026-10-20"}, End: &gcal.EventDateTime{Date: "2026-10-21"}},
			}})
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&inserted)
			_ = json.NewEncoder(w).Encode(gcal.Event{Id: "evt-1"})
		}
	})

	from := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	busy := g.ListBusyIntervals(context.Background(), from, from.AddDate(0, 0, 3))
	if !busy.Ok() {
		t.Fatalf("list: %v", busy.Err())
	}
	if len(busy.Value) != 2 {
		t.Fatalf("expected timed and all-day intervals, got %#v", busy.Value)
	}
	if busy.Value[1].End.Sub(busy.Value[1].Start) != 24*time.Hour {
		t.Fatalf("all-day event should block the whole day")
	}

	start := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	res := g.CreateEvent(context.Background(), Event{Summary: "Recordatorio", Start: start, End: start.Add(30 * time.Minute), Transparent: true})
	if !res.Ok() || res.Value != "evt-1" {
		t.Fatalf("create: %#v", res)
	}
	if inserted.Summary != "Recordatorio" || inserted.Transparency != "transparent" {
		t.Fatalf("unexpected insert payload %#v", inserted)
	}
}

func TestGoogleCalendarClassifiesErrors(t *testing.T) {
	status := http.StatusForbidden
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
	})

	from := time.Now()
	if res := g.ListBusyIntervals(context.Background(), from, from.Add(time.Hour)); res.Status != outcome.StatusFailed {
		t.Fatalf("403 should be failed, got %s", res.Status)
	}
	status = http.StatusServiceUnavailable
	if res := g.ListBusyIntervals(context.Background(), from, from.Add(time.Hour)); res.Status != outcome.StatusUnavailable {
		t.Fatalf("503 should be unavailable, got %s", res.Status)
	}
}

func TestDecodeCredentials(t *testing.T) {
	if _, err := decodeCredentials(""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	raw, err := decodeCredentials(`{"type":"service_account"}`)
	if err != nil || string(raw) != `{"type":"service_account"}` {
		t.Fatalf("unexpected raw decode %q %v", raw, err)
	}
	decoded, err := decodeCredentials("eyJ0eXBlIjoic2VydmljZV9hY2NvdW50In0=")
	if err != nil || string(decoded) != `{"type":"service_account"}` {
		t.Fatalf("unexpected base64 decode %q %v", decoded, err)
	}
	if _, err := decodeCredentials("not base64!"); err == nil {
		t.Fatalf("expected error for garbage credentials")
	}
}
