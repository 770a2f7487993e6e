package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/jarvis-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/jarvis-scheduler/internal/http/middleware"
	"github.com/wolfman30/jarvis-scheduler/internal/messaging"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	MessagingHandler *messaging.Handler
	AdminHandler     *handlers.AdminHandler
	AdminAuthSecret  string
	// AdminAudience, when set, is required in the aud claim of admin tokens.
	AdminAudience  string
	MetricsHandler http.Handler
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/", cfg.MessagingHandler.Root)
		public.Get("/health", cfg.MessagingHandler.HealthCheck)
		public.Post("/messages", cfg.MessagingHandler.PostMessage)
		public.Post("/analyze", cfg.MessagingHandler.Analyze)
		public.Route("/messaging", func(r chi.Router) {
			r.Post("/twilio/webhook", cfg.MessagingHandler.TwilioWebhook)
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.AdminHandler != nil && cfg.AdminAuthSecret != "" {
		var authOpts []httpmiddleware.AdminOption
		if cfg.AdminAudience != "" {
			authOpts = append(authOpts, httpmiddleware.RequireAudience(cfg.AdminAudience))
		}
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, authOpts...))
			admin.Get("/conversations/active", cfg.AdminHandler.ListActive)
			admin.Get("/conversations/{phone}", cfg.AdminHandler.GetConversation)
			admin.Post("/conversations/{phone}/postpone", cfg.AdminHandler.Postpone)
			admin.Get("/monitor", cfg.AdminHandler.MonitorStatus)
			admin.Get("/config", cfg.AdminHandler.Config)
			admin.Delete("/clients/{phone}", cfg.AdminHandler.DeleteClient)
		})
	}

	return r
}
