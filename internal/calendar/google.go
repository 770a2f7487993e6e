package calendar

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/outcome"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

const defaultCallTimeout = 30 * time.Second

// GoogleConfig configures the Google Calendar adapter.
type GoogleConfig struct {
	// Credentials is a service-account JSON document, raw or base64 encoded.
	Credentials string
	CalendarID  string
	Location    *time.Location
	Timeout     time.Duration
}

// GoogleCalendar reads and writes the owner's Google Calendar.
type GoogleCalendar struct {
	svc        *gcal.Service
	calendarID string
	location   *time.Location
	timeout    time.Duration
	logger     *logging.Logger
}

// NewGoogleCalendar authenticates with a service account.
func NewGoogleCalendar(ctx context.Context, cfg GoogleConfig, logger *logging.Logger) (*GoogleCalendar, error) {
	creds, err := decodeCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsJSON(creds),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("calendar: create google service: %w", err)
	}
	return newGoogleCalendar(svc, cfg, logger), nil
}

func newGoogleCalendar(svc *gcal.Service, cfg GoogleConfig, logger *logging.Logger) *GoogleCalendar {
	if logger == nil {
		logger = logging.Default()
	}
	calendarID := strings.TrimSpace(cfg.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &GoogleCalendar{
		svc:        svc,
		calendarID: calendarID,
		location:   loc,
		timeout:    timeout,
		logger:     logger,
	}
}

// decodeCredentials accepts the JSON document or its base64 encoding.
func decodeCredentials(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNotConfigured
	}
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("calendar: credentials are neither JSON nor base64: %w", err)
	}
	return decoded, nil
}

func (g *GoogleCalendar) ListBusyIntervals(ctx context.Context, from, to time.Time) outcome.Result[[]availability.Interval] {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var busy []availability.Interval
	err := g.svc.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.Transparency == "transparent" || item.Status == "cancelled" {
					continue
				}
				iv, ok := g.interval(item)
				if !ok {
					continue
				}
				busy = append(busy, iv)
			}
			return nil
		})
	if err != nil {
		g.logger.Warn("google calendar list failed", "calendar_id", g.calendarID, "error", err.Error())
		return classify[[]availability.Interval](err)
	}
	return outcome.OK(busy)
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, event Event) outcome.Result[string] {
	if err := validateEvent(event); err != nil {
		return outcome.Failed[string](err)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	tz := event.TimeZone
	if tz == "" {
		tz = g.location.String()
	}
	body := &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339), TimeZone: tz},
		End:         &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339), TimeZone: tz},
	}
	if event.Transparent {
		body.Transparency = "transparent"
	}
	created, err := g.svc.Events.Insert(g.calendarID, body).Context(ctx).Do()
	if err != nil {
		g.logger.Warn("google calendar insert failed", "calendar_id", g.calendarID, "error", err.Error())
		return classify[string](err)
	}
	return outcome.OK(created.Id)
}

// interval converts a timed or all-day event into a busy range.
func (g *GoogleCalendar) interval(item *gcal.Event) (availability.Interval, bool) {
	if item.Start == nil || item.End == nil {
		return availability.Interval{}, false
	}
	if item.Start.DateTime != "" {
		start, err1 := time.Parse(time.RFC3339, item.Start.DateTime)
		end, err2 := time.Parse(time.RFC3339, item.End.DateTime)
		if err1 != nil || err2 != nil {
			return availability.Interval{}, false
		}
		return availability.Interval{Start: start, End: end}, true
	}
	start, err1 := time.ParseInLocation("2006-01-02", item.Start.Date, g.location)
	end, err2 := time.ParseInLocation("2006-01-02", item.End.Date, g.location)
	if err1 != nil || err2 != nil {
		return availability.Interval{}, false
	}
	return availability.Interval{Start: start, End: end}, true
}

// classify maps client-side rejections to Failed and everything else
// (network, timeouts, 5xx, throttling) to Unavailable.
func classify[T any](err error) outcome.Result[T] {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code == http.StatusRequestTimeout, apiErr.Code >= 500:
			return outcome.Unavailable[T](err)
		case apiErr.Code >= 400:
			return outcome.Failed[T](err)
		}
	}
	return outcome.Unavailable[T](err)
}
