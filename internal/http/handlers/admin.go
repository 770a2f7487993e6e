// Package handlers holds the owner-facing admin API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/jarvis-scheduler/internal/clients"
	"github.com/wolfman30/jarvis-scheduler/internal/conversation"
	"github.com/wolfman30/jarvis-scheduler/internal/http/middleware"
	"github.com/wolfman30/jarvis-scheduler/internal/messaging"
	"github.com/wolfman30/jarvis-scheduler/internal/monitor"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

type conversationAdmin interface {
	ActiveConversations(ctx context.Context) ([]*conversation.Conversation, error)
	Conversation(ctx context.Context, phone string) (*conversation.Conversation, error)
	Postpone(ctx context.Context, phone string, minutes int) (*conversation.Conversation, error)
}

type monitorStatus interface {
	Status() monitor.Status
}

// AdminHandler serves the /admin routes. Every route sits behind AdminJWT.
type AdminHandler struct {
	engine  conversationAdmin
	clients clients.Repository
	monitor monitorStatus
	config  any
	logger  *logging.Logger
}

// NewAdminHandler wires the admin API. config is served as-is by GET
// /admin/config and must already be redacted.
func NewAdminHandler(engine conversationAdmin, repo clients.Repository, mon monitorStatus, config any, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		engine:  engine,
		clients: repo,
		monitor: mon,
		config:  config,
		logger:  logger,
	}
}

type activeConversationsResponse struct {
	Conversations []*conversation.Conversation `json:"conversations"`
	Total         int                          `json:"total"`
}

// ListActive handles GET /admin/conversations/active.
func (h *AdminHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	convs, err := h.engine.ActiveConversations(r.Context())
	if err != nil {
		h.logger.Error("failed to list active conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []*conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, activeConversationsResponse{Conversations: convs, Total: len(convs)})
}

// GetConversation handles GET /admin/conversations/{phone}.
func (h *AdminHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	conv, err := h.engine.Conversation(r.Context(), phone)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "phone", phone)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Postpone handles POST /admin/conversations/{phone}/postpone?minutes=N.
func (h *AdminHandler) Postpone(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	minutes := 0
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 7*24*60 {
			writeError(w, http.StatusBadRequest, "minutes must be between 1 and 10080")
			return
		}
		minutes = n
	}

	conv, err := h.engine.Postpone(r.Context(), phone, minutes)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if errors.Is(err, conversation.ErrVersionConflict) {
		writeError(w, http.StatusConflict, "conversation changed, retry")
		return
	}
	if err != nil {
		h.logger.Error("failed to postpone conversation", "error", err, "phone", phone)
		writeError(w, http.StatusInternalServerError, "failed to postpone conversation")
		return
	}
	h.logger.Info("conversation postponed by admin", "phone", phone, "minutes", minutes, "admin", middleware.AdminSubject(r.Context()))
	writeJSON(w, http.StatusOK, conv)
}

// MonitorStatus handles GET /admin/monitor.
func (h *AdminHandler) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor not running")
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// Config handles GET /admin/config.
func (h *AdminHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config)
}

// DeleteClient handles DELETE /admin/clients/{phone}.
func (h *AdminHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	err := h.clients.Delete(r.Context(), phone)
	if errors.Is(err, clients.ErrClientNotFound) {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete client", "error", err, "phone", phone)
		writeError(w, http.StatusInternalServerError, "failed to delete client")
		return
	}
	h.logger.Info("client deleted by admin", "phone", phone, "admin", middleware.AdminSubject(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func phoneParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	phone := messaging.NormalizeE164(chi.URLParam(r, "phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "invalid phone number")
		return "", false
	}
	return phone, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
