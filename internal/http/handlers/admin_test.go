package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/jarvis-scheduler/internal/clients"
	"github.com/wolfman30/jarvis-scheduler/internal/conversation"
	"github.com/wolfman30/jarvis-scheduler/internal/monitor"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

type fakeEngine struct {
	convs         map[string]*conversation.Conversation
	postponePhone string
	postponeMins  int
}

func (f *fakeEngine) ActiveConversations(ctx context.Context) ([]*conversation.Conversation, error) {
	var out []*conversation.Conversation
	for _, c := range f.convs {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeEngine) Conversation(ctx context.Context, phone string) (*conversation.Conversation, error) {
	c, ok := f.convs[phone]
	if !ok {
		return nil, conversation.ErrConversationNotFound
	}
	return c, nil
}

func (f *fakeEngine) Postpone(ctx context.Context, phone string, minutes int) (*conversation.Conversation, error) {
	c, ok := f.convs[phone]
	if !ok {
		return nil, conversation.ErrConversationNotFound
	}
	f.postponePhone, f.postponeMins = phone, minutes
	c.State = conversation.StatePostponed
	c.Active = false
	return c, nil
}

type fixedMonitor struct{ status monitor.Status }

func (f fixedMonitor) Status() monitor.Status { return f.status }

func newTestRouter(t *testing.T) (http.Handler, *fakeEngine, *clients.InMemoryRepository) {
	t.Helper()
	engine := &fakeEngine{convs: map[string]*conversation.Conversation{
		"+525512345678": {Phone: "+525512345678", State: conversation.StateOfferingSlots, Active: true},
		"+525587654321": {Phone: "+525587654321", State: conversation.StateBooked},
	}}
	repo := clients.NewInMemoryRepository()
	require.NoError(t, repo.Create(context.Background(), &clients.Client{Phone: "+525512345678", Name: "Ana", CreatedAt: time.Now()}))

	h := NewAdminHandler(engine, repo, fixedMonitor{status: monitor.Status{Mode: monitor.ModeActive, ActiveConversations: 1}},
		map[string]string{"owner_name": "Tony"}, logging.Discard())

	r := chi.NewRouter()
	r.Get("/admin/conversations/active", h.ListActive)
	r.Get("/admin/conversations/{phone}", h.GetConversation)
	r.Post("/admin/conversations/{phone}/postpone", h.Postpone)
	r.Get("/admin/monitor", h.MonitorStatus)
	r.Get("/admin/config", h.Config)
	r.Delete("/admin/clients/{phone}", h.DeleteClient)
	return r, engine, repo
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestAdminListActive(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rr := do(t, h, http.MethodGet, "/admin/conversations/active")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp activeConversationsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "+525512345678", resp.Conversations[0].Phone)
}

func TestAdminGetConversation(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/admin/conversations/5512345678")
	require.Equal(t, http.StatusOK, rr.Code)
	var conv conversation.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&conv))
	assert.Equal(t, conversation.StateOfferingSlots, conv.State)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/admin/conversations/+15550000000").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/admin/conversations/abc").Code)
}

func TestAdminPostpone(t *testing.T) {
	h, engine, _ := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/admin/conversations/+525512345678/postpone?minutes=90")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "+525512345678", engine.postponePhone)
	assert.Equal(t, 90, engine.postponeMins)

	rr = do(t, h, http.MethodPost, "/admin/conversations/+525512345678/postpone")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, engine.postponeMins)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/admin/conversations/+525512345678/postpone?minutes=-5").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/admin/conversations/+15550000000/postpone").Code)
}

func TestAdminMonitorAndConfig(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/admin/monitor")
	require.Equal(t, http.StatusOK, rr.Code)
	var status monitor.Status
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	assert.Equal(t, monitor.ModeActive, status.Mode)

	rr = do(t, h, http.MethodGet, "/admin/config")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"owner_name":"Tony"`)
}

func TestAdminDeleteClient(t *testing.T) {
	h, _, repo := newTestRouter(t)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/admin/clients/+525512345678").Code)
	_, err := repo.Get(context.Background(), "+525512345678")
	assert.ErrorIs(t, err, clients.ErrClientNotFound)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/admin/clients/+525512345678").Code)
}
