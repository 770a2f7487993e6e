package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/calendar"
	"github.com/wolfman30/jarvis-scheduler/internal/clients"
	"github.com/wolfman30/jarvis-scheduler/internal/conversation"
	"github.com/wolfman30/jarvis-scheduler/internal/http/handlers"
	"github.com/wolfman30/jarvis-scheduler/internal/intent"
	"github.com/wolfman30/jarvis-scheduler/internal/messaging"
	"github.com/wolfman30/jarvis-scheduler/internal/monitor"
	"github.com/wolfman30/jarvis-scheduler/internal/observability/metrics"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

const adminSecret = "test-secret"

func newTestRouter(t *testing.T, secret string) http.Handler {
	t.Helper()
	logger := logging.Discard()
	now := func() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC) }
	reg := prometheus.NewRegistry()

	repo := clients.NewInMemoryRepository()
	classifier := intent.NewClassifier(nil, "Tony", logger, intent.WithClock(now))
	engine := conversation.NewEngine(conversation.NewMemoryStore(), repo, classifier, calendar.NewMemoryCalendar(), conversation.Config{
		OwnerName: "Tony",
		Hours:     availability.DefaultHours(time.UTC),
	}, logger, conversation.WithClock(now), conversation.WithMetrics(metrics.NewConversationMetrics(reg)))

	msgHandler := messaging.NewHandler(engine, classifier, logger,
		messaging.WithClock(now),
		messaging.WithMetrics(metrics.NewMessagingMetrics(reg)),
	)
	admin := handlers.NewAdminHandler(engine, repo, monitor.NewLoop(engine, logger), map[string]string{"owner_name": "Tony"}, logger)

	return New(&Config{
		Logger:           logger,
		MessagingHandler: msgHandler,
		AdminHandler:     admin,
		AdminAuthSecret:  secret,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "owner",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(adminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, adminSecret)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestRouterMessageFlowAndAdmin(t *testing.T) {
	router := newTestRouter(t, adminSecret)

	rr := httptest.NewRecorder()
	body := `{"phone_number":"+525512345678","message_text":"Hola, soy Ana"}`
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), intent.AssistantName) {
		t.Fatalf("expected greeting from the assistant, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/conversations/+525512345678", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations/+525512345678", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
	var conv conversation.Conversation
	if err := json.NewDecoder(rr.Body).Decode(&conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	if conv.State != conversation.StateAwaitingReply {
		t.Fatalf("expected awaiting_reply, got %s", conv.State)
	}
}

func TestRouterAdminDisabledWithoutSecret(t *testing.T) {
	router := newTestRouter(t, "")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/monitor", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, "")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"phone_number":"+525512345678","message_text":"hola"}`)))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "jarvis_messaging_inbound_total") {
		t.Fatalf("expected messaging counter in metrics output")
	}
}
