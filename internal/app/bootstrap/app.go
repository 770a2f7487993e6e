package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/jarvis-scheduler/internal/ai"
	"github.com/wolfman30/jarvis-scheduler/internal/api/router"
	"github.com/wolfman30/jarvis-scheduler/internal/calendar"
	appconfig "github.com/wolfman30/jarvis-scheduler/internal/config"
	"github.com/wolfman30/jarvis-scheduler/internal/conversation"
	"github.com/wolfman30/jarvis-scheduler/internal/http/handlers"
	"github.com/wolfman30/jarvis-scheduler/internal/intent"
	"github.com/wolfman30/jarvis-scheduler/internal/messaging"
	"github.com/wolfman30/jarvis-scheduler/internal/monitor"
	"github.com/wolfman30/jarvis-scheduler/internal/observability/metrics"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

// App is the assembled service: HTTP handler, engine and monitoring loop.
type App struct {
	Handler http.Handler
	Engine  *conversation.Engine
	Monitor *monitor.Loop
	Chain   *ai.Chain

	closers []func() error
}

// Build wires every component from cfg. Optional dependencies that are
// missing or unreachable fall back to in-memory or unconfigured variants.
func Build(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, reg *prometheus.Registry, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &App{}
	chain, closers, err := BuildAIChain(ctx, cfg, loadAWS, logger, metrics.NewAIMetrics(reg))
	if err != nil {
		return nil, err
	}
	app.Chain = chain
	app.closers = append(app.closers, closers...)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, redisClient.Close)
	}
	store := BuildConversationStore(redisClient, cfg.ConversationTimeout, logger)

	repo, pool, err := BuildClientRepository(ctx, cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if pool != nil {
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
	}

	cal := BuildCalendar(ctx, cfg, loc, logger)
	classifier := intent.NewClassifier(chain, cfg.OwnerName, logger, intent.WithLocation(loc))

	app.Engine = conversation.NewEngine(store, repo, classifier, cal, conversation.Config{
		OwnerName:         cfg.OwnerName,
		Hours:             cfg.BusinessHours(loc),
		SlotMinutes:       cfg.SlotMinutes,
		DaysAhead:         cfg.DaysAhead,
		MaxOfferedSlots:   cfg.MaxOfferedSlots,
		InactivityTimeout: cfg.ConversationTimeout,
		ReminderDelay:     cfg.ReminderDelay,
	}, logger,
		conversation.WithResponder(chain),
		conversation.WithNotifier(BuildNotifier(cfg, loc, logger)),
		conversation.WithMetrics(metrics.NewConversationMetrics(reg)),
	)

	app.Monitor = monitor.NewLoop(app.Engine, logger).
		WithIntervals(cfg.ActiveInterval, cfg.PassiveInterval).
		WithBackoff(cfg.MonitorBackoff).
		WithMetrics(metrics.NewMonitorMetrics(reg))

	checks := []messaging.HealthCheck{
		{Name: "ai", Check: func(context.Context) error {
			if len(chain.Names()) == 0 {
				return ai.ErrNoBackends
			}
			return nil
		}},
		{Name: "calendar", Check: func(ctx context.Context) error {
			now := time.Now()
			return cal.ListBusyIntervals(ctx, now, now.Add(time.Minute)).Err()
		}},
		{Name: "store", Check: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Ping(ctx).Err()
		}},
	}
	if pool != nil {
		checks = append(checks, messaging.HealthCheck{Name: "database", Check: pool.Ping})
	}
	msgOpts := []messaging.HandlerOption{
		messaging.WithMetrics(metrics.NewMessagingMetrics(reg)),
		messaging.WithHealthChecks(checks...),
	}
	if cfg.TwilioWebhookSecret != "" {
		msgOpts = append(msgOpts, messaging.WithTwilioSignature(cfg.TwilioWebhookSecret, cfg.PublicBaseURL))
	}

	app.Handler = router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messaging.NewHandler(app.Engine, classifier, logger, msgOpts...),
		AdminHandler:     handlers.NewAdminHandler(app.Engine, repo, app.Monitor, cfg.Redacted(), logger),
		AdminAuthSecret:  cfg.AdminJWTSecret,
		AdminAudience:    cfg.AdminJWTAudience,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	if _, ok := cal.(calendar.Unconfigured); ok {
		logger.Warn("running without a calendar; appointment requests get the busy reply")
	}
	return app, nil
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
