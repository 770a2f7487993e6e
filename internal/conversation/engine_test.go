package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/calendar"
	"github.com/wolfman30/jarvis-scheduler/internal/clients"
	"github.com/wolfman30/jarvis-scheduler/internal/intent"
	"github.com/wolfman30/jarvis-scheduler/internal/notify"
	"github.com/wolfman30/jarvis-scheduler/internal/outcome"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

const testPhone = "+525512345678"

type fakeCalendar struct {
	*calendar.MemoryCalendar
	mu        sync.Mutex
	listErr   error
	createErr error
	creates   int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{MemoryCalendar: calendar.NewMemoryCalendar()}
}

func (f *fakeCalendar) ListBusyIntervals(ctx context.Context, from, to time.Time) outcome.Result[[]availability.Interval] {
	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return outcome.Unavailable[[]availability.Interval](err)
	}
	return f.MemoryCalendar.ListBusyIntervals(ctx, from, to)
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, ev calendar.Event) outcome.Result[string] {
	f.mu.Lock()
	f.creates++
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return outcome.Unavailable[string](err)
	}
	return f.MemoryCalendar.CreateEvent(ctx, ev)
}

func (f *fakeCalendar) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Kind)
	}
	return out
}

type stubResponder struct {
	text  string
	calls int
}

func (s *stubResponder) Respond(ctx context.Context, prompt, systemContext string) outcome.Result[string] {
	s.calls++
	if s.text == "" {
		return outcome.Unavailable[string](nil)
	}
	return outcome.OK(s.text)
}

type harness struct {
	engine   *Engine
	store    *MemoryStore
	clients  *clients.InMemoryRepository
	calendar *fakeCalendar
	notifier *recordingNotifier
	now      time.Time
	mu       sync.Mutex
}

func newHarness(t *testing.T, opts ...EngineOption) *harness {
	t.Helper()
	h := &harness{
		store:    NewMemoryStore(),
		clients:  clients.NewInMemoryRepository(),
		calendar: newFakeCalendar(),
		notifier: &recordingNotifier{},
		// Monday before opening.
		now: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
	}
	classifier := intent.NewClassifier(nil, "Sergio", logging.Discard())
	base := []EngineOption{WithClock(h.clock), WithNotifier(h.notifier)}
	h.engine = NewEngine(h.store, h.clients, classifier, h.calendar, Config{
		OwnerName:         "Sergio",
		Hours:             availability.DefaultHours(time.UTC),
		SlotMinutes:       60,
		DaysAhead:         3,
		MaxOfferedSlots:   5,
		InactivityTimeout: 30 * time.Minute,
	}, logging.Discard(), append(base, opts...)...)
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

func (h *harness) send(t *testing.T, body string) Reply {
	t.Helper()
	reply, err := h.engine.HandleMessage(context.Background(), Inbound{From: testPhone, Body: body})
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", body, err)
	}
	return reply
}

func (h *harness) conversation(t *testing.T) *Conversation {
	t.Helper()
	conv, err := h.store.Get(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	return conv
}

func (h *harness) client(t *testing.T) *clients.Client {
	t.Helper()
	c, err := h.clients.Get(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	return c
}

func TestRequestThenConfirmBooks(t *testing.T) {
	h := newHarness(t)

	reply := h.send(t, "Hola, quisiera agendar una cita")
	if reply.State != StateOfferingSlots || !reply.Send {
		t.Fatalf("expected offering_slots on the first message, got %#v", reply)
	}
	if !strings.HasPrefix(reply.Text, "Buenos días") || !strings.Contains(reply.Text, "Sergio") {
		t.Fatalf("offer must follow the greeting, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "1) lun 19/10 a las 09:00") || strings.Contains(reply.Text, "6)") {
		t.Fatalf("unexpected offer %q", reply.Text)
	}
	conv := h.conversation(t)
	if len(conv.Candidates) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(conv.Candidates))
	}
	if !h.client(t).PendingAppointment {
		t.Fatalf("client should be pending while slots are offered")
	}

	reply = h.send(t, "Sí, por favor")
	if reply.State != StateBooked || !strings.Contains(reply.Text, "19/10/2026 a las 09:00") {
		t.Fatalf("expected booking confirmation, got %#v", reply)
	}
	conv = h.conversation(t)
	if !conv.AppointmentScheduled || conv.Active || len(conv.Candidates) != 0 || conv.Context[ContextEventID] == "" {
		t.Fatalf("unexpected booked conversation %#v", conv)
	}
	client := h.client(t)
	if client.PendingAppointment || client.PendingMessage != "" {
		t.Fatalf("pending flag must be cleared after booking: %#v", client)
	}
	events := h.calendar.Events()
	if len(events) != 1 || events[0].Start.Hour() != 9 {
		t.Fatalf("expected the earliest slot booked, got %#v", events)
	}
	kinds := h.notifier.kinds()
	if len(kinds) != 2 || kinds[0] != notify.KindNewContact || kinds[1] != notify.KindBooked {
		t.Fatalf("unexpected owner notifications %v", kinds)
	}
}

func TestNonAppointmentFirstMessageOnlyGreets(t *testing.T) {
	h := newHarness(t)

	reply := h.send(t, "Hola, quisiera saber si me puede atender")
	if reply.State != StateAwaitingReply || strings.Contains(reply.Text, "1)") {
		t.Fatalf("a non-appointment first message only gets the greeting, got %#v", reply)
	}
	reply = h.send(t, "quiero agendar")
	if reply.State != StateOfferingSlots {
		t.Fatalf("expected offering_slots, got %s", reply.State)
	}
}

func TestOfferListsAtMostFiveOptions(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	slots := make([]availability.Slot, 10)
	for i := range slots {
		s := start.Add(time.Duration(i) * time.Hour)
		slots[i] = availability.Slot{Start: s, End: s.Add(time.Hour), TimeZone: "UTC"}
	}

	text := offerReply(slots, 10)
	if !strings.Contains(text, "5) ") || strings.Contains(text, "6) ") {
		t.Fatalf("expected five listed options, got %q", text)
	}
	if text := offerReply(slots[:3], 5); !strings.Contains(text, "3) ") || strings.Contains(text, "4) ") {
		t.Fatalf("expected three listed options, got %q", text)
	}
}

func TestAdvertisementClosesWithoutReply(t *testing.T) {
	h := newHarness(t)
	h.send(t, "hola")

	reply := h.send(t, "¡Gran PROMOCIÓN! 2x1 con descuento")
	if reply.Send || reply.Text != "" {
		t.Fatalf("advertisement must not be answered: %#v", reply)
	}
	if reply.Intent != intent.CategoryAdvertisement {
		t.Fatalf("expected advertisement intent, got %s", reply.Intent)
	}
	conv := h.conversation(t)
	if conv.State != StateInactive || conv.Active {
		t.Fatalf("expected inactive conversation, got %#v", conv)
	}
}

func TestPostponeFromOfferSchedulesOneReminder(t *testing.T) {
	h := newHarness(t)
	h.send(t, "quiero una cita")
	if h.conversation(t).State != StateOfferingSlots {
		t.Fatalf("setup: expected offering_slots")
	}
	before := h.calendar.Creates()

	reply := h.send(t, "mejor más tarde, ¿podemos posponer?")
	if reply.State != StatePostponed {
		t.Fatalf("expected postponed, got %s", reply.State)
	}
	if got := h.calendar.Creates() - before; got != 1 {
		t.Fatalf("expected exactly one reminder call, got %d", got)
	}
	if !strings.Contains(reply.Text, "09:00") {
		t.Fatalf("expected resume time one hour ahead, got %q", reply.Text)
	}
	conv := h.conversation(t)
	if conv.Active || conv.Context[ContextReminderAt] == "" {
		t.Fatalf("unexpected postponed conversation %#v", conv)
	}
	events := h.calendar.Events()
	if len(events) != 1 || !events[0].Transparent || events[0].End.Sub(events[0].Start) != 30*time.Minute {
		t.Fatalf("unexpected reminder %#v", events)
	}
}

func TestPostponeStillClosesWhenCalendarFails(t *testing.T) {
	h := newHarness(t)
	h.send(t, "hola")
	h.calendar.createErr = errors.New("calendar down")

	reply := h.send(t, "posponer por favor")
	if reply.State != StatePostponed || !strings.Contains(reply.Text, "ocupado") {
		t.Fatalf("expected postponed with busy text, got %#v", reply)
	}
}

func TestCalendarFailureKeepsStateAndMarksPending(t *testing.T) {
	h := newHarness(t)
	h.calendar.listErr = errors.New("timeout")

	reply := h.send(t, "necesito una cita")
	if reply.State != StateAwaitingReply {
		t.Fatalf("state must stay at the greeting on calendar failure, got %s", reply.State)
	}
	if !strings.Contains(reply.Text, "Sergio") || !strings.Contains(reply.Text, "ocupado") {
		t.Fatalf("expected greeting plus busy text, got %q", reply.Text)
	}
	client := h.client(t)
	if !client.PendingAppointment || client.PendingMessage != "necesito una cita" {
		t.Fatalf("client should keep the pending request: %#v", client)
	}

	reply = h.send(t, "sí")
	if reply.State != StateAwaitingReply || !strings.Contains(reply.Text, "ocupado") {
		t.Fatalf("state must not change while the calendar is down, got %#v", reply)
	}

	h.calendar.mu.Lock()
	h.calendar.listErr = nil
	h.calendar.mu.Unlock()
	reply = h.send(t, "sí")
	if reply.State != StateOfferingSlots {
		t.Fatalf("expected offer once the calendar recovers, got %s", reply.State)
	}
}

func TestBookingFailureStaysInOffer(t *testing.T) {
	h := newHarness(t)
	h.send(t, "quiero una cita")
	h.calendar.createErr = errors.New("quota")

	reply := h.send(t, "ok")
	if reply.State != StateOfferingSlots || reply.Text != retryLaterReply {
		t.Fatalf("expected retry-later in offering_slots, got %#v", reply)
	}
	if len(h.conversation(t).Candidates) == 0 {
		t.Fatalf("candidates must be kept for the retry")
	}
}

func TestGeneralContactAsksBeforeOffering(t *testing.T) {
	h := newHarness(t)
	h.send(t, "Buenas tardes")

	reply := h.send(t, "sí")
	if reply.State != StatePendingConfirmation {
		t.Fatalf("expected pending_confirmation, got %s", reply.State)
	}
	reply = h.send(t, "claro")
	if reply.State != StateOfferingSlots {
		t.Fatalf("expected offering_slots, got %s", reply.State)
	}
	reply = h.send(t, "no gracias")
	if reply.State != StateInactive || reply.Text != closingReply {
		t.Fatalf("expected closing, got %#v", reply)
	}
	if len(h.conversation(t).Candidates) != 0 {
		t.Fatalf("closing must discard candidates")
	}
}

func TestTerminalConversationReopens(t *testing.T) {
	h := newHarness(t)
	h.send(t, "hola")
	h.send(t, "no")

	reply := h.send(t, "hola otra vez")
	if reply.State != StateAwaitingReply || !reply.Send {
		t.Fatalf("expected reopen, got %#v", reply)
	}
	if got := h.notifier.kinds(); len(got) != 1 {
		t.Fatalf("reopen must not notify a new contact again, got %v", got)
	}
}

func TestAppointmentChangeReoffers(t *testing.T) {
	h := newHarness(t)
	h.send(t, "quiero una cita")
	h.send(t, "sí")
	if h.conversation(t).State != StateBooked {
		t.Fatalf("setup: expected booked")
	}

	reply := h.send(t, "necesito reprogramar mi cita")
	if reply.State != StateOfferingSlots || reply.Intent != intent.CategoryAppointmentChange {
		t.Fatalf("expected re-offer, got %#v", reply)
	}
	for _, s := range h.conversation(t).Candidates {
		if s.Start.Hour() == 9 && s.Start.Day() == 19 {
			t.Fatalf("booked slot must not be offered again")
		}
	}
}

func TestOtherMessagesUseResponder(t *testing.T) {
	responder := &stubResponder{text: "La oficina está en el centro."}
	h := newHarness(t, WithResponder(responder))
	h.send(t, "hola")

	reply := h.send(t, "¿dónde queda la oficina?")
	if reply.Text != "La oficina está en el centro." || reply.State != StateAwaitingReply {
		t.Fatalf("unexpected contextual reply %#v", reply)
	}

	responder.text = ""
	reply = h.send(t, "¿y el estacionamiento?")
	if reply.Text != FallbackReply("Sergio") {
		t.Fatalf("expected canned fallback, got %q", reply.Text)
	}
	if responder.calls != 2 {
		t.Fatalf("expected 2 responder calls, got %d", responder.calls)
	}
}

func TestNoAvailabilityCloses(t *testing.T) {
	h := newHarness(t)
	h.send(t, "hola")
	start := h.now
	h.calendar.MemoryCalendar.CreateEvent(context.Background(), calendar.Event{Start: start, End: start.AddDate(0, 0, 4)})

	reply := h.send(t, "quiero una cita")
	if reply.State != StateInactive || !strings.Contains(reply.Text, "no hay horarios") {
		t.Fatalf("expected no availability, got %#v", reply)
	}
}

func TestLogicalTimeout(t *testing.T) {
	h := newHarness(t)
	h.send(t, "hola")

	active, err := h.engine.ActiveConversations(context.Background())
	if err != nil || len(active) != 1 {
		t.Fatalf("expected one active conversation, got %d (%v)", len(active), err)
	}

	h.advance(31 * time.Minute)
	active, err = h.engine.ActiveConversations(context.Background())
	if err != nil || len(active) != 0 {
		t.Fatalf("expired conversation must not be active, got %d (%v)", len(active), err)
	}

	reply := h.send(t, "sí")
	if reply.State != StateAwaitingReply || !strings.Contains(reply.Text, "Sergio") {
		t.Fatalf("expired conversation should restart with a greeting, got %#v", reply)
	}
}

func TestConcurrentMessagesSerialize(t *testing.T) {
	h := newHarness(t)
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.HandleMessage(context.Background(), Inbound{From: testPhone, Body: "hola"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent message failed: %v", err)
		}
	}

	conv := h.conversation(t)
	if conv.Version != n {
		t.Fatalf("expected %d sequential writes, got version %d", n, conv.Version)
	}
	if got := h.notifier.kinds(); len(got) != 1 || got[0] != notify.KindNewContact {
		t.Fatalf("exactly one message must see the sender as new, got %v", got)
	}
}

func TestMissingClientIsRecreated(t *testing.T) {
	h := newHarness(t)
	if err := h.store.Put(context.Background(), &Conversation{Phone: testPhone, State: StateAwaitingReply, Active: true, LastMessageAt: h.now}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h.send(t, "sí")
	if _, err := h.clients.Get(context.Background(), testPhone); err != nil {
		t.Fatalf("client should be recreated: %v", err)
	}
}

func TestAdminPostpone(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Postpone(context.Background(), testPhone, 60); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	h.send(t, "hola")

	conv, err := h.engine.Postpone(context.Background(), testPhone, 15)
	if err != nil {
		t.Fatalf("postpone: %v", err)
	}
	if conv.State != StatePostponed || conv.Context[ContextReminderAt] != "2026-10-19T08:15:00Z" {
		t.Fatalf("unexpected postponed conversation %#v", conv)
	}
}

func TestInvalidInbound(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.HandleMessage(context.Background(), Inbound{From: " ", Body: "hola"}); !errors.Is(err, ErrInvalidInbound) {
		t.Fatalf("expected ErrInvalidInbound, got %v", err)
	}
	if _, err := h.engine.HandleMessage(context.Background(), Inbound{From: testPhone}); !errors.Is(err, ErrInvalidInbound) {
		t.Fatalf("expected ErrInvalidInbound, got %v", err)
	}
}
