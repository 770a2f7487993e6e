package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/jarvis-scheduler/internal/calendar"
	appconfig "github.com/wolfman30/jarvis-scheduler/internal/config"
	"github.com/wolfman30/jarvis-scheduler/internal/conversation"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		OwnerName:        "Tony",
		BusinessTimezone: "UTC",
		BusinessDays:     []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		SlotMinutes:      60,
		DaysAhead:        7,
		MaxOfferedSlots:  5,
	}
}

func TestBuildAIChainSkipsUnusableBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.AIBackends = []string{"gemini", "huggingface", "bedrock", "carrier-pigeon", "ollama"}
	cfg.BedrockModelID = "anthropic.claude-3-haiku"
	failingAWS := func(context.Context) (aws.Config, error) { return aws.Config{}, errors.New("no credentials") }

	chain, closers, err := BuildAIChain(context.Background(), cfg, failingAWS, logging.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ollama"}, chain.Names())
	assert.Empty(t, closers)
}

func TestBuildAIChainBedrock(t *testing.T) {
	cfg := memoryConfig()
	cfg.AIBackends = []string{"bedrock"}
	cfg.BedrockModelID = "anthropic.claude-3-haiku"
	loader := func(context.Context) (aws.Config, error) {
		return aws.Config{Region: "us-east-1", Credentials: aws.AnonymousCredentials{}}, nil
	}

	chain, _, err := BuildAIChain(context.Background(), cfg, loader, logging.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bedrock"}, chain.Names())
}

func TestBuildCalendarFallsBackToUnconfigured(t *testing.T) {
	cfg := memoryConfig()
	cal := BuildCalendar(context.Background(), cfg, time.UTC, logging.Discard())
	assert.IsType(t, calendar.Unconfigured{}, cal)

	cfg.GoogleCalendarCredentials = "%%% not base64 %%%"
	cal = BuildCalendar(context.Background(), cfg, time.UTC, logging.Discard())
	assert.IsType(t, calendar.Unconfigured{}, cal)
}

func TestBuildConversationStoreUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()

	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	require.NotNil(t, client)
	defer client.Close()
	assert.IsType(t, &conversation.RedisStore{}, BuildConversationStore(client, time.Hour, logging.Discard()))
	assert.IsType(t, &conversation.MemoryStore{}, BuildConversationStore(nil, time.Hour, logging.Discard()))
}

func TestBuildRedisClientUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Discard(), true))
}

func TestBuildServesMessagesInMemory(t *testing.T) {
	app, err := Build(context.Background(), memoryConfig(), nil, prometheus.NewRegistry(), logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	rr := httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/messages",
		strings.NewReader(`{"phone_number":"+525512345678","message_text":"Hola"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Tony")

	rr = httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "ok", health.Components["store"])
	assert.NotEqual(t, "ok", health.Components["ai"])
	assert.NotEqual(t, "ok", health.Components["calendar"])

	active, err := app.Engine.ActiveConversations(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBuildRejectsUnknownTimezone(t *testing.T) {
	cfg := memoryConfig()
	cfg.BusinessTimezone = "Mars/Olympus_Mons"
	_, err := Build(context.Background(), cfg, nil, nil, logging.Discard())
	assert.Error(t, err)
}
