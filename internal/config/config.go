package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/intent"
)

// Config holds application configuration. It is read once at startup.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	OwnerName  string
	OwnerPhone string
	OwnerEmail string

	BusinessTimezone  string
	BusinessStartHour int
	BusinessEndHour   int
	BusinessDays      []time.Weekday
	SlotMinutes       int
	DaysAhead         int
	MaxOfferedSlots   int

	ActiveInterval      time.Duration
	PassiveInterval     time.Duration
	MonitorBackoff      time.Duration
	ConversationTimeout time.Duration
	ReminderDelay       time.Duration

	AIBackends    []string
	AITimeout     time.Duration
	AIMaxTokens   int
	OllamaBaseURL string
	OllamaModel   string
	HFToken       string
	HFModel       string
	GeminiAPIKey  string
	GeminiModel   string

	BedrockModelID      string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	GoogleCalendarCredentials string
	GoogleCalendarID          string
	CalendarTimeout           time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	TwilioWebhookSecret string
	AdminJWTSecret      string
	AdminJWTAudience    string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables, after merging an
// optional .env file in the working directory.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		OwnerName:  strings.TrimSpace(getEnv("OWNER_NAME", "")),
		OwnerPhone: getEnv("OWNER_PHONE", ""),
		OwnerEmail: getEnv("OWNER_EMAIL", ""),

		BusinessTimezone:  getEnv("BUSINESS_TIMEZONE", "America/Mexico_City"),
		BusinessStartHour: getEnvAsInt("BUSINESS_START_HOUR", 9),
		BusinessEndHour:   getEnvAsInt("BUSINESS_END_HOUR", 18),
		BusinessDays:      parseWeekdays(getEnv("BUSINESS_DAYS", "mon,tue,wed,thu,fri")),
		SlotMinutes:       getEnvAsInt("SLOT_MINUTES", 60),
		DaysAhead:         getEnvAsInt("DAYS_AHEAD", 7),
		MaxOfferedSlots:   getEnvAsInt("MAX_OFFERED_SLOTS", 5),

		ActiveInterval:      getEnvAsDuration("ACTIVE_INTERVAL", time.Second, time.Second),
		PassiveInterval:     getEnvAsDuration("PASSIVE_INTERVAL", 5*time.Minute, time.Minute),
		MonitorBackoff:      getEnvAsDuration("MONITOR_BACKOFF", 10*time.Second, time.Second),
		ConversationTimeout: getEnvAsDuration("CONVERSATION_TIMEOUT", 24*time.Hour, time.Minute),
		ReminderDelay:       getEnvAsDuration("REMINDER_DELAY", time.Hour, time.Minute),

		AIBackends:    parseList(getEnv("AI_BACKENDS", "ollama,huggingface")),
		AITimeout:     getEnvAsDuration("AI_TIMEOUT", 30*time.Second, time.Second),
		AIMaxTokens:   getEnvAsInt("AI_MAX_TOKENS", 150),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3.2:1b"),
		HFToken:       getEnv("HF_TOKEN", ""),
		HFModel:       getEnv("HF_MODEL", "meta-llama/Llama-3.2-1B-Instruct"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		GoogleCalendarCredentials: getEnv("GOOGLE_CALENDAR_CREDENTIALS", getEnv("GOOGLE_CREDENTIALS_JSON", "")),
		GoogleCalendarID:          getEnv("GOOGLE_CALENDAR_ID", "primary"),
		CalendarTimeout:           getEnvAsDuration("CALENDAR_TIMEOUT", 30*time.Second, time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),
		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWTAudience:    getEnv("ADMIN_JWT_AUDIENCE", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Jarvis"),
	}
}

// Location resolves BusinessTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: load timezone %q: %w", c.BusinessTimezone, err)
	}
	return loc, nil
}

// BusinessHours builds the availability window. Invalid hours fall back to
// 09:00-18:00.
func (c *Config) BusinessHours(loc *time.Location) availability.Hours {
	hours := availability.DefaultHours(loc)
	if c.BusinessStartHour >= 0 && c.BusinessEndHour <= 24 && c.BusinessStartHour < c.BusinessEndHour {
		hours.StartHour = c.BusinessStartHour
		hours.EndHour = c.BusinessEndHour
	}
	if len(c.BusinessDays) > 0 {
		hours.Days = c.BusinessDays
	}
	return hours
}

// Redacted is the view served by GET /admin/config: secrets are reported as
// set or unset only.
func (c *Config) Redacted() map[string]any {
	days := make([]string, 0, len(c.BusinessDays))
	for _, d := range c.BusinessDays {
		days = append(days, d.String())
	}
	return map[string]any{
		"env":                     c.Env,
		"owner_name":              c.OwnerName,
		"owner_email_set":         c.OwnerEmail != "",
		"business_timezone":       c.BusinessTimezone,
		"business_start_hour":     c.BusinessStartHour,
		"business_end_hour":       c.BusinessEndHour,
		"business_days":           days,
		"slot_minutes":            c.SlotMinutes,
		"days_ahead":              c.DaysAhead,
		"max_offered_slots":       c.MaxOfferedSlots,
		"active_interval":         c.ActiveInterval.String(),
		"passive_interval":        c.PassiveInterval.String(),
		"conversation_timeout":    c.ConversationTimeout.String(),
		"reminder_delay":          c.ReminderDelay.String(),
		"ai_backends":             c.AIBackends,
		"ai_timeout":              c.AITimeout.String(),
		"calendar_configured":     c.GoogleCalendarCredentials != "",
		"calendar_id":             c.GoogleCalendarID,
		"redis_configured":        c.RedisAddr != "",
		"database_configured":     c.DatabaseURL != "",
		"twilio_signature_check":  c.TwilioWebhookSecret != "",
		"email_notifications_set": c.SendGridAPIKey != "" && c.OwnerEmail != "",
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or bare integers counted in unit.
func getEnvAsDuration(key string, defaultValue, unit time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	if n, err := strconv.Atoi(valueStr); err == nil && n > 0 {
		return time.Duration(n) * unit
	}
	return defaultValue
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseWeekdays accepts English or Spanish names, accents optional. An
// invalid list yields nil so the default business days apply.
func parseWeekdays(raw string) []time.Weekday {
	days, err := availability.ParseWeekdays(intent.Fold(raw))
	if err != nil {
		return nil
	}
	return days
}
