package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/calendar"
	"github.com/wolfman30/jarvis-scheduler/internal/clients"
	"github.com/wolfman30/jarvis-scheduler/internal/intent"
	"github.com/wolfman30/jarvis-scheduler/internal/notify"
	"github.com/wolfman30/jarvis-scheduler/internal/observability/metrics"
	"github.com/wolfman30/jarvis-scheduler/internal/outcome"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

// ErrInvalidInbound is returned for messages without sender or body.
var ErrInvalidInbound = errors.New("conversation: sender and body are required")

// Classifier reads the intent of a message.
type Classifier interface {
	Classify(ctx context.Context, message string, known *clients.Client) intent.Analysis
}

// Responder produces free-form replies.
type Responder interface {
	Respond(ctx context.Context, prompt, systemContext string) outcome.Result[string]
}

// Config holds the scheduling parameters.
type Config struct {
	OwnerName       string
	Hours           availability.Hours
	SlotMinutes     int
	DaysAhead       int
	MaxOfferedSlots int
	// InactivityTimeout expires quiet non-terminal conversations logically.
	InactivityTimeout time.Duration
	ReminderDelay     time.Duration
	ReminderDuration  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Hours.EndHour <= c.Hours.StartHour {
		c.Hours = availability.DefaultHours(c.Hours.Location)
	}
	if c.Hours.Location == nil {
		c.Hours.Location = time.UTC
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = 60
	}
	if c.DaysAhead <= 0 {
		c.DaysAhead = 7
	}
	if c.MaxOfferedSlots <= 0 {
		c.MaxOfferedSlots = 5
	}
	if c.ReminderDelay <= 0 {
		c.ReminderDelay = time.Hour
	}
	if c.ReminderDuration <= 0 {
		c.ReminderDuration = 30 * time.Minute
	}
	return c
}

// Inbound is one message delivered by the transport.
type Inbound struct {
	From       string
	Body       string
	ReceivedAt time.Time
}

// Reply is what the transport should send back. Send is false when the
// sender should get no answer (advertisements).
type Reply struct {
	Text   string          `json:"text,omitempty"`
	Send   bool            `json:"send"`
	State  State           `json:"state"`
	Intent intent.Category `json:"intent"`
}

// Engine owns every Conversation and Client transition.
type Engine struct {
	store      Store
	clients    clients.Repository
	classifier Classifier
	responder  Responder
	calendar   calendar.Calendar
	notifier   notify.Notifier
	cfg        Config
	logger     *logging.Logger
	metrics    *metrics.ConversationMetrics
	tracer     trace.Tracer
	now        func() time.Time
	locks      *keyLock
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithNotifier(n notify.Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithResponder(r Responder) EngineOption {
	return func(e *Engine) { e.responder = r }
}

func WithMetrics(m *metrics.ConversationMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func NewEngine(store Store, repo clients.Repository, classifier Classifier, cal calendar.Calendar, cfg Config, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil || repo == nil || classifier == nil {
		panic("conversation: store, client repository and classifier are required")
	}
	if cal == nil {
		cal = calendar.Unconfigured{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:      store,
		clients:    repo,
		classifier: classifier,
		calendar:   cal,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		tracer:     otel.Tracer("jarvis.internal.conversation"),
		now:        time.Now,
		locks:      newKeyLock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OwnerName is the configured owner, used by transports for fallback text.
func (e *Engine) OwnerName() string {
	return e.cfg.OwnerName
}

// turn carries the mutable records of one transition.
type turn struct {
	conv      *Conversation
	client    *clients.Client
	analysis  intent.Analysis
	body      string
	now       time.Time
	newClient bool
	notes     []notify.Notification
}

// HandleMessage runs one inbound message through the state machine.
// Messages from the same phone are processed one at a time.
func (e *Engine) HandleMessage(ctx context.Context, in Inbound) (Reply, error) {
	phone := strings.TrimSpace(in.From)
	body := strings.TrimSpace(in.Body)
	if phone == "" || body == "" {
		return Reply{}, ErrInvalidInbound
	}
	now := in.ReceivedAt
	if now.IsZero() {
		now = e.now()
	}
	now = now.In(e.cfg.Hours.Location)

	ctx, span := e.tracer.Start(ctx, "conversation.handle_message")
	defer span.End()

	unlock := e.locks.Lock(phone)
	defer unlock()

	t, expected, err := e.load(ctx, phone, now)
	if err != nil {
		span.RecordError(err)
		return Reply{}, err
	}
	t.body = body
	t.analysis = e.classifier.Classify(ctx, body, t.client)
	e.metrics.ObserveIntent(string(t.analysis.Intent), string(t.analysis.Source))

	from := t.conv.State
	t.conv.LastMessageAt = now
	t.conv.Context[ContextLastMessage] = body
	t.client.LastContact = now
	e.rememberAnalysis(t)

	reply := e.route(ctx, t)
	reply.State = t.conv.State
	reply.Intent = t.analysis.Intent
	span.SetAttributes(
		attribute.String("conversation.from_state", string(from)),
		attribute.String("conversation.to_state", string(t.conv.State)),
		attribute.String("conversation.intent", string(t.analysis.Intent)),
	)

	if err := e.persist(ctx, t, expected); err != nil {
		span.RecordError(err)
		return Reply{}, err
	}
	if from != t.conv.State {
		e.metrics.ObserveTransition(string(from), string(t.conv.State))
	}
	e.logger.Info("conversation transition",
		"phone", phone,
		"from", string(from),
		"to", string(t.conv.State),
		"intent", string(t.analysis.Intent),
	)
	e.dispatch(ctx, t.notes)
	return reply, nil
}

// load fetches or creates the client and conversation for phone. A stored
// conversation without a client recreates the client.
func (e *Engine) load(ctx context.Context, phone string, now time.Time) (*turn, int64, error) {
	t := &turn{now: now}

	client, err := e.clients.Get(ctx, phone)
	switch {
	case err == nil:
		t.client = client
	case errors.Is(err, clients.ErrClientNotFound):
		t.client = &clients.Client{Phone: phone, CreatedAt: now.UTC()}
		t.newClient = true
	default:
		return nil, 0, fmt.Errorf("conversation: load client: %w", err)
	}

	conv, err := e.store.Get(ctx, phone)
	switch {
	case err == nil:
	case errors.Is(err, ErrConversationNotFound):
		conv = &Conversation{Phone: phone, State: StateNew}
	default:
		return nil, 0, fmt.Errorf("conversation: load conversation: %w", err)
	}
	if conv.Context == nil {
		conv.Context = make(map[string]string)
	}
	expected := conv.Version

	if t.newClient && conv.State != StateNew {
		e.logger.Warn("conversation without client, recreating client", "phone", phone)
	}
	if conv.Expired(now, e.cfg.InactivityTimeout) {
		conv.State = StateInactive
		conv.Active = false
	}
	t.conv = conv
	return t, expected, nil
}

func (e *Engine) rememberAnalysis(t *turn) {
	a := t.analysis
	if a.ClientName != "" {
		t.conv.Context[ContextClientName] = a.ClientName
		if strings.TrimSpace(t.client.Name) == "" {
			t.client.Name = a.ClientName
		}
	}
	if a.ProposedDate != "" {
		t.conv.Context[ContextProposedDate] = a.ProposedDate
	}
	if a.ProposedTime != "" {
		t.conv.Context[ContextProposedTime] = a.ProposedTime
	}
}

// route applies the transition rules in priority order.
func (e *Engine) route(ctx context.Context, t *turn) Reply {
	conv := t.conv
	switch {
	case t.analysis.Intent == intent.CategoryAdvertisement:
		conv.State = StateInactive
		conv.Active = false
		return Reply{Send: false}

	case intent.HasPostponeMarker(t.body):
		return e.postpone(ctx, t, e.cfg.ReminderDelay)

	case conv.State == StateNew:
		greeting := e.greet(t, true)
		if t.analysis.Intent != intent.CategoryAppointmentRequest {
			return greeting
		}
		offer := e.offerSlots(ctx, t)
		return send(greeting.Text + "\n\n" + offer.Text)

	case t.analysis.Intent == intent.CategoryAppointmentChange:
		conv.Candidates = nil
		return e.offerSlots(ctx, t)
	}

	affirmative := intent.IsAffirmative(t.body)
	negative := intent.IsNegative(t.body)

	switch conv.State {
	case StateAwaitingReply:
		if affirmative {
			if intent.Category(conv.Context[ContextPendingIntent]).IsAppointment() || t.analysis.Intent.IsAppointment() {
				return e.offerSlots(ctx, t)
			}
			conv.State = StatePendingConfirmation
			conv.Active = true
			return send(askCheckTimesReply(e.cfg.OwnerName))
		}
		if negative {
			return e.close(t)
		}
	case StatePendingConfirmation:
		if affirmative {
			return e.offerSlots(ctx, t)
		}
		if negative {
			return e.close(t)
		}
	case StateOfferingSlots:
		if affirmative {
			return e.book(ctx, t)
		}
		if negative {
			return e.close(t)
		}
	}

	if t.analysis.Intent == intent.CategoryAppointmentRequest {
		return e.offerSlots(ctx, t)
	}
	if conv.State.Terminal() {
		return e.greet(t, false)
	}
	return e.contextual(ctx, t)
}

// greet opens a new cycle and waits for the sender's answer.
func (e *Engine) greet(t *turn, firstContact bool) Reply {
	conv := t.conv
	conv.State = StateAwaitingReply
	conv.Active = true
	conv.Candidates = nil
	conv.Context[ContextPendingIntent] = string(t.analysis.Intent)
	if firstContact {
		t.notes = append(t.notes, notify.Notification{
			Kind:       notify.KindNewContact,
			Phone:      conv.Phone,
			ClientName: t.client.Name,
			Message:    t.body,
			At:         t.now,
		})
	}
	return send(intent.FormalGreeting(t.now, e.cfg.OwnerName))
}

func (e *Engine) close(t *turn) Reply {
	t.conv.State = StateInactive
	t.conv.Active = false
	t.conv.Candidates = nil
	return send(closingReply)
}

func (e *Engine) offerSlots(ctx context.Context, t *turn) Reply {
	conv := t.conv
	busy := e.calendar.ListBusyIntervals(ctx, t.now, t.now.AddDate(0, 0, e.cfg.DaysAhead))
	e.metrics.ObserveCalendarCall("list", string(busy.Status))
	if !busy.Ok() {
		e.logger.Warn("calendar unavailable while offering slots",
			"phone", conv.Phone,
			"status", string(busy.Status),
			"error", busy.Err().Error(),
		)
		e.markPending(t)
		conv.Active = true
		return send(busyReply(e.cfg.OwnerName))
	}

	slots := availability.AvailableSlots(busy.Value, availability.Query{
		Now:         t.now,
		DaysAhead:   e.cfg.DaysAhead,
		SlotMinutes: e.cfg.SlotMinutes,
		Hours:       e.cfg.Hours,
		Limit:       e.cfg.MaxOfferedSlots,
	})
	if len(slots) == 0 {
		conv.State = StateInactive
		conv.Active = false
		conv.Candidates = nil
		return send(noAvailabilityReply(e.cfg.OwnerName))
	}

	conv.Candidates = slots
	conv.State = StateOfferingSlots
	conv.Active = true
	e.markPending(t)
	return send(offerReply(slots, e.cfg.MaxOfferedSlots))
}

func (e *Engine) markPending(t *turn) {
	t.client.PendingAppointment = true
	t.client.PendingMessage = t.body
}

// book reserves the earliest offered slot.
func (e *Engine) book(ctx context.Context, t *turn) Reply {
	conv := t.conv
	slot, ok := availability.Earliest(conv.Candidates)
	if !ok {
		return e.offerSlots(ctx, t)
	}

	res := e.calendar.CreateEvent(ctx, calendar.Event{
		Summary:     "Cita con " + t.client.DisplayName(),
		Description: fmt.Sprintf("Agendada por %s vía SMS. Teléfono: %s", intent.AssistantName, conv.Phone),
		Start:       slot.Start,
		End:         slot.End,
		TimeZone:    slot.TimeZone,
	})
	e.metrics.ObserveCalendarCall("create", string(res.Status))
	if !res.Ok() {
		e.logger.Warn("booking failed, keeping offer open",
			"phone", conv.Phone,
			"status", string(res.Status),
			"error", res.Err().Error(),
		)
		conv.Active = true
		return send(retryLaterReply)
	}

	conv.State = StateBooked
	conv.Active = false
	conv.AppointmentScheduled = true
	conv.Candidates = nil
	conv.Context[ContextEventID] = res.Value
	t.client.PendingAppointment = false
	t.client.PendingMessage = ""
	t.notes = append(t.notes, notify.Notification{
		Kind:       notify.KindBooked,
		Phone:      conv.Phone,
		ClientName: t.client.Name,
		Message:    t.body,
		At:         slot.Start,
	})
	return send(confirmedReply(e.cfg.OwnerName, slot))
}

// postpone schedules a reminder and closes the cycle. A calendar failure
// still postpones; the sender gets the busy text instead of a time.
func (e *Engine) postpone(ctx context.Context, t *turn, delay time.Duration) Reply {
	conv := t.conv
	at := t.now.Add(delay)
	res := e.calendar.CreateEvent(ctx, calendar.Event{
		Summary:     "Recordatorio: contactar a " + t.client.DisplayName(),
		Description: fmt.Sprintf("Conversación pospuesta por SMS. Teléfono: %s", conv.Phone),
		Start:       at,
		End:         at.Add(e.cfg.ReminderDuration),
		TimeZone:    e.cfg.Hours.Location.String(),
		Transparent: true,
	})
	e.metrics.ObserveCalendarCall("reminder", string(res.Status))

	conv.State = StatePostponed
	conv.Active = false
	conv.Candidates = nil
	conv.Context[ContextReminderAt] = at.Format(time.RFC3339)
	t.notes = append(t.notes, notify.Notification{
		Kind:       notify.KindPostponed,
		Phone:      conv.Phone,
		ClientName: t.client.Name,
		Message:    t.body,
		At:         at,
	})
	if !res.Ok() {
		e.logger.Warn("reminder could not be scheduled", "phone", conv.Phone, "error", res.Err().Error())
		return send(busyReply(e.cfg.OwnerName))
	}
	return send(postponedReply(e.cfg.OwnerName, at))
}

func (e *Engine) contextual(ctx context.Context, t *turn) Reply {
	t.conv.Active = true
	fallback := FallbackReply(e.cfg.OwnerName)
	if e.responder == nil {
		return send(fallback)
	}
	res := e.responder.Respond(ctx, t.body, contextualSystemPrompt(e.cfg.OwnerName, t.client.Name))
	if !res.Ok() {
		return send(fallback)
	}
	return send(res.Value)
}

func send(text string) Reply {
	return Reply{Text: text, Send: true}
}

// persist writes the conversation with a version check, then the client.
func (e *Engine) persist(ctx context.Context, t *turn, expected int64) error {
	if err := e.store.CompareAndSwap(ctx, t.conv, expected); err != nil {
		return fmt.Errorf("conversation: save %s: %w", t.conv.Phone, err)
	}
	if err := e.saveClient(ctx, t); err != nil {
		e.logger.Error("client record not saved", "phone", t.client.Phone, "error", err.Error())
	}
	return nil
}

func (e *Engine) saveClient(ctx context.Context, t *turn) error {
	if t.newClient {
		err := e.clients.Create(ctx, t.client)
		if !errors.Is(err, clients.ErrClientExists) {
			return err
		}
	}
	err := e.clients.Update(ctx, t.client)
	if errors.Is(err, clients.ErrClientNotFound) {
		return e.clients.Create(ctx, t.client)
	}
	return err
}

func (e *Engine) dispatch(ctx context.Context, notes []notify.Notification) {
	if e.notifier == nil {
		return
	}
	for _, n := range notes {
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.logger.Warn("owner notification failed", "kind", string(n.Kind), "phone", n.Phone, "error", err.Error())
		}
	}
}

// Postpone closes the conversation for phone and schedules a reminder after
// the given number of minutes.
func (e *Engine) Postpone(ctx context.Context, phone string, minutes int) (*Conversation, error) {
	if minutes <= 0 {
		minutes = int(e.cfg.ReminderDelay / time.Minute)
	}
	ctx, span := e.tracer.Start(ctx, "conversation.postpone")
	defer span.End()

	unlock := e.locks.Lock(phone)
	defer unlock()

	now := e.now().In(e.cfg.Hours.Location)
	t, expected, err := e.load(ctx, phone, now)
	if err != nil {
		return nil, err
	}
	if t.conv.State == StateNew {
		return nil, ErrConversationNotFound
	}
	from := t.conv.State
	e.postpone(ctx, t, time.Duration(minutes)*time.Minute)
	if err := e.persist(ctx, t, expected); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if from != t.conv.State {
		e.metrics.ObserveTransition(string(from), string(t.conv.State))
	}
	e.dispatch(ctx, t.notes)
	return t.conv.Clone(), nil
}

// ActiveConversations lists conversations still expecting a reply,
// excluding those past the inactivity window.
func (e *Engine) ActiveConversations(ctx context.Context) ([]*Conversation, error) {
	convs, err := e.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation: list active: %w", err)
	}
	now := e.now()
	out := convs[:0]
	for _, c := range convs {
		if c.Active && !c.State.Terminal() && !c.Expired(now, e.cfg.InactivityTimeout) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Conversation returns the stored record for phone.
func (e *Engine) Conversation(ctx context.Context, phone string) (*Conversation, error) {
	return e.store.Get(ctx, phone)
}
