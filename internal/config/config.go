package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the backend server's configuration.
type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogLevel    string
	PublicURL   string

	JWTSecret   string
	AnonKey     string
	SessionTTL  time.Duration
	AutoConfirm bool
	AdminEmails []string

	GeminiAPIKey string
	GeminiModel  string

	NodeEnv         string
	EnableChat      bool
	EnableBlog      bool
	EnableResources bool
	EnableAnalytics bool
	AdminEmail      string
	SupportEmail    string

	AuthRatePerMinute  int
	WriteRatePerMinute int

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on environment variables")
	}

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "mentalhealth.db"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		AnonKey:     getEnv("SUPABASE_ANON_KEY", ""),
		SessionTTL:  getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		AutoConfirm: getEnvAsBool("AUTH_AUTOCONFIRM", true),
		AdminEmails: splitList(getEnv("ADMIN_EMAILS", "")),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		NodeEnv:         getEnv("NODE_ENV", "production"),
		EnableChat:      getEnvAsBool("ENABLE_CHAT", true),
		EnableBlog:      getEnvAsBool("ENABLE_BLOG", true),
		EnableResources: getEnvAsBool("ENABLE_RESOURCES", true),
		EnableAnalytics: getEnvAsBool("ENABLE_ANALYTICS", false),
		AdminEmail:      getEnv("ADMIN_EMAIL", "admin@mentalhealth-ai.bd"),
		SupportEmail:    getEnv("SUPPORT_EMAIL", "support@mentalhealth-ai.bd"),

		AuthRatePerMinute:  getEnvAsInt("AUTH_RATE_LIMIT", 10),
		WriteRatePerMinute: getEnvAsInt("WRITE_RATE_LIMIT", 60),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
	}
	cfg.PublicURL = getEnv("PUBLIC_URL", "http://localhost:"+cfg.HTTPPort)

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	return cfg, nil
}

// PublicEnv is the document served by GET /api/env. Only values a client may see.
func (c *Config) PublicEnv() map[string]any {
	return map[string]any{
		"GEMINI_API_KEY":    c.GeminiAPIKey,
		"GEMINI_MODEL":      c.GeminiModel,
		"SUPABASE_URL":      c.PublicURL,
		"SUPABASE_ANON_KEY": c.AnonKey,
		"NODE_ENV":          c.NodeEnv,
		"ENABLE_CHAT":       c.EnableChat,
		"ENABLE_BLOG":       c.EnableBlog,
		"ENABLE_RESOURCES":  c.EnableResources,
		"ENABLE_ANALYTICS":  c.EnableAnalytics,
		"ADMIN_EMAIL":       c.AdminEmail,
		"SUPPORT_EMAIL":     c.SupportEmail,
	}
}

// GoogleOAuthEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleOAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
