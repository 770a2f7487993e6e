package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/jarvis-scheduler/internal/calendar"
	"github.com/wolfman30/jarvis-scheduler/internal/clients"
	appconfig "github.com/wolfman30/jarvis-scheduler/internal/config"
	"github.com/wolfman30/jarvis-scheduler/internal/conversation"
	"github.com/wolfman30/jarvis-scheduler/internal/notify"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; conversations stay in memory", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildConversationStore picks Redis when a client is available. Idle
// conversations leave the Redis active set after timeout.
func BuildConversationStore(redisClient *redis.Client, timeout time.Duration, logger *logging.Logger) conversation.Store {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil {
		logger.Info("conversation store: memory")
		return conversation.NewMemoryStore()
	}
	logger.Info("conversation store: redis")
	return conversation.NewRedisStore(redisClient, nil, conversation.WithActiveTimeout(timeout))
}

// BuildClientRepository opens a pgx pool when DATABASE_URL is set. The pool
// is returned so the caller can close it and probe it from /health.
func BuildClientRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (clients.Repository, *pgxpool.Pool, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Info("client repository: memory")
		return clients.NewInMemoryRepository(), nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("client repository: postgres")
	return clients.NewPostgresRepository(pool), pool, nil
}

// BuildCalendar returns the Google calendar when credentials are set and
// Unconfigured otherwise. A broken credential document degrades to
// Unconfigured rather than stopping the service.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, loc *time.Location, logger *logging.Logger) calendar.Calendar {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.GoogleCalendarCredentials) == "" {
		logger.Warn("google calendar not configured; availability checks will report busy")
		return calendar.Unconfigured{}
	}
	gc, err := calendar.NewGoogleCalendar(ctx, calendar.GoogleConfig{
		Credentials: cfg.GoogleCalendarCredentials,
		CalendarID:  cfg.GoogleCalendarID,
		Location:    loc,
		Timeout:     cfg.CalendarTimeout,
	}, logger)
	if err != nil {
		logger.Error("google calendar unavailable", "error", err)
		return calendar.Unconfigured{}
	}
	logger.Info("google calendar connected", "calendar_id", cfg.GoogleCalendarID)
	return gc
}

// BuildNotifier emails the owner through SendGrid, or logs the emails when
// SendGrid or OWNER_EMAIL is missing.
func BuildNotifier(cfg *appconfig.Config, loc *time.Location, logger *logging.Logger) notify.Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	var sender notify.EmailSender = notify.NewLogSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil && cfg.OwnerEmail != "" {
		sender = sg
	}
	return notify.NewOwnerEmailNotifier(sender, cfg.OwnerEmail, cfg.OwnerName, loc, logger)
}
