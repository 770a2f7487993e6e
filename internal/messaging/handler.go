// Package messaging is the inbound transport: the Twilio SMS webhook and the
// JSON endpoints used by the monitoring app.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/jarvis-scheduler/internal/clients"
	"github.com/wolfman30/jarvis-scheduler/internal/conversation"
	"github.com/wolfman30/jarvis-scheduler/internal/intent"
	"github.com/wolfman30/jarvis-scheduler/internal/observability/metrics"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

var twilioTracer = otel.Tracer("jarvis.internal.messaging.twilio")

const (
	sourceTwilio = "twilio"
	sourceJSON   = "json"
)

type messageEngine interface {
	HandleMessage(ctx context.Context, in conversation.Inbound) (conversation.Reply, error)
	OwnerName() string
}

type analyzer interface {
	Classify(ctx context.Context, message string, known *clients.Client) intent.Analysis
}

// HealthCheck is one readiness probe reported by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the inbound message endpoints.
type Handler struct {
	engine        messageEngine
	analyzer      analyzer
	logger        *logging.Logger
	metrics       *metrics.MessagingMetrics
	webhookSecret string
	publicBaseURL string
	checks        []HealthCheck
	now           func() time.Time
}

type HandlerOption func(*Handler)

// WithTwilioSignature enables X-Twilio-Signature validation. publicBaseURL
// overrides the scheme and host used to rebuild the signed URL.
func WithTwilioSignature(authToken, publicBaseURL string) HandlerOption {
	return func(h *Handler) {
		h.webhookSecret = authToken
		h.publicBaseURL = publicBaseURL
	}
}

func WithMetrics(m *metrics.MessagingMetrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func WithHealthChecks(checks ...HealthCheck) HandlerOption {
	return func(h *Handler) { h.checks = append(h.checks, checks...) }
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(engine messageEngine, analyzer analyzer, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if engine == nil {
		panic("messaging: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		engine:   engine,
		analyzer: analyzer,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// TwilioWebhook handles POST /messaging/twilio/webhook and answers with TwiML.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()
	defer func() { h.metrics.ObserveWebhookLatency(sourceTwilio, time.Since(start).Seconds()) }()

	if h.webhookSecret != "" {
		if !ValidateTwilioSignature(r, h.webhookSecret, buildAbsoluteURL(r, h.publicBaseURL)) {
			h.logger.Warn("invalid twilio signature")
			h.metrics.ObserveInbound(sourceTwilio, "unauthorized")
			span.RecordError(errors.New("invalid twilio signature"))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		h.metrics.ObserveInbound(sourceTwilio, "invalid")
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	from := NormalizeE164(webhook.From)
	span.SetAttributes(
		attribute.String("jarvis.twilio.message_sid", webhook.MessageSid),
		attribute.String("jarvis.twilio.from", from),
	)
	if from == "" || webhook.Body == "" {
		err := errors.New("missing required twilio fields")
		h.logger.Warn("invalid twilio payload", "error", err, "message_sid", webhook.MessageSid)
		h.metrics.ObserveInbound(sourceTwilio, "invalid")
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	text := h.process(ctx, sourceTwilio, conversation.Inbound{From: from, Body: webhook.Body, ReceivedAt: h.now()})
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(TwiML(text))
}

// process runs the engine and returns the text to send, or "" for silence.
// Engine errors degrade to the generic follow-up reply.
func (h *Handler) process(ctx context.Context, source string, in conversation.Inbound) string {
	reply, err := h.engine.HandleMessage(ctx, in)
	if err != nil {
		h.logger.Error("message handling failed", "error", err, "phone", in.From, "source", source)
		h.metrics.ObserveInbound(source, "fallback")
		return conversation.FallbackReply(h.engine.OwnerName())
	}
	if !reply.Send {
		h.metrics.ObserveInbound(source, "silent")
		return ""
	}
	h.metrics.ObserveInbound(source, "replied")
	return reply.Text
}

type messageRequest struct {
	PhoneNumber string `json:"phone_number"`
	MessageText string `json:"message_text"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type messageResponse struct {
	Reply string `json:"reply,omitempty"`
	Send  bool   `json:"send"`
	Phone string `json:"phone_number"`
}

// PostMessage handles POST /messages from the monitoring app.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	defer func() { h.metrics.ObserveWebhookLatency(sourceJSON, time.Since(start).Seconds()) }()

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.ObserveInbound(sourceJSON, "invalid")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	phone := NormalizeE164(req.PhoneNumber)
	body := strings.TrimSpace(req.MessageText)
	if phone == "" || body == "" {
		h.metrics.ObserveInbound(sourceJSON, "invalid")
		writeError(w, http.StatusBadRequest, "phone_number and message_text are required")
		return
	}
	receivedAt := h.now()
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			h.metrics.ObserveInbound(sourceJSON, "invalid")
			writeError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		receivedAt = ts
	}

	text := h.process(r.Context(), sourceJSON, conversation.Inbound{From: phone, Body: body, ReceivedAt: receivedAt})
	writeJSON(w, http.StatusOK, messageResponse{Reply: text, Send: text != "", Phone: phone})
}

type analyzeRequest struct {
	MessageText string `json:"message_text"`
}

// Analyze handles POST /analyze: classification only, no state changes.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "classifier not configured")
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.MessageText)
	if text == "" {
		writeError(w, http.StatusBadRequest, "message_text is required")
		return
	}
	writeJSON(w, http.StatusOK, h.analyzer.Classify(r.Context(), text, nil))
}

// HealthCheck handles GET /health. Failing probes mark the service degraded
// but keep 200, since every dependency has a fallback.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			components[c.Name] = err.Error()
			status = "degraded"
			continue
		}
		components[c.Name] = "ok"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
		"time":       h.now().UTC().Format(time.RFC3339),
	})
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":   "jarvis-scheduler",
		"assistant": intent.AssistantName,
		"owner":     h.engine.OwnerName(),
		"status":    "running",
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
