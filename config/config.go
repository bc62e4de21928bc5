package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	TransportHTTP = "http"
	TransportSMTP = "smtp"
)

// Config holds all application configurations
type Config struct {
	DatabaseURL string
	JWTSecret   string
	TokenTTL    time.Duration
	EmailDomain string // addresses must end in @EmailDomain to register

	// Relay
	RelayTransport string // http (Postal send API) or smtp
	PostalAPIURL   string
	PostalAPIKey   string
	MailHub        string // host:port of the SMTP submission endpoint
	AuthUser       string
	AuthPass       string
	SkipTLSVerify  bool
	RelayTimeout   time.Duration

	DailyMailLimit    int // recipients per user per 24h, negative disables
	SchedulerInterval time.Duration

	Port       string
	UploadDir  string
	CORSOrigin string
	LogLevel   slog.Level

	// BackendURL is where mailctl finds the server.
	BackendURL string
}

// PostalConfigured reports whether the HTTP relay has both URL and key.
func (c *Config) PostalConfigured() bool {
	return c.PostalAPIURL != "" && c.PostalAPIKey != ""
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("TOKEN_TTL", time.Hour)
	v.SetDefault("RELAY_TRANSPORT", TransportHTTP)
	v.SetDefault("RELAY_TIMEOUT", 15*time.Second)
	v.SetDefault("DAILY_MAIL_LIMIT", 2000)
	v.SetDefault("SCHEDULER_INTERVAL", 30*time.Second)
	v.SetDefault("PORT", "8080")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("LOG_LEVEL", "info")
	return v
}

// LoadConfig reads configuration from a .env file, if present, and the
// environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables directly")
	}
	return fromViper(newViper())
}

// LoadClientConfig is LoadConfig for tools that only talk to the HTTP API
// and need none of the server's required settings.
func LoadClientConfig() *Config {
	_ = godotenv.Load()
	v := newViper()
	return &Config{BackendURL: backendURL(v)}
}

func backendURL(v *viper.Viper) string {
	for _, key := range []string{"BACKEND_URL", "NEXT_PUBLIC_BACKEND_URL"} {
		if u := strings.TrimSpace(v.GetString(key)); u != "" {
			return strings.TrimRight(u, "/")
		}
	}
	return "http://localhost:8080"
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:       v.GetString("DATABASE_URL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		TokenTTL:          v.GetDuration("TOKEN_TTL"),
		EmailDomain:       strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v.GetString("APP_EMAIL_DOMAIN"))), "@"),
		RelayTransport:    strings.ToLower(v.GetString("RELAY_TRANSPORT")),
		PostalAPIURL:      v.GetString("POSTAL_API_URL"),
		PostalAPIKey:      v.GetString("POSTAL_API_KEY"),
		MailHub:           v.GetString("MAILHUB"),
		AuthUser:          v.GetString("AUTHUSER"),
		AuthPass:          v.GetString("AUTHPASS"),
		SkipTLSVerify:     flag(v, "SKIP_TLS_VERIFY"),
		RelayTimeout:      v.GetDuration("RELAY_TIMEOUT"),
		DailyMailLimit:    v.GetInt("DAILY_MAIL_LIMIT"),
		SchedulerInterval: v.GetDuration("SCHEDULER_INTERVAL"),
		Port:              v.GetString("PORT"),
		UploadDir:         v.GetString("UPLOAD_DIR"),
		CORSOrigin:        v.GetString("CORS_ORIGIN"),
		BackendURL:        backendURL(v),
	}

	if cfg.DailyMailLimit == 0 {
		cfg.DailyMailLimit = 2000
		slog.Warn("DAILY_MAIL_LIMIT not set or invalid, using default", "limit", cfg.DailyMailLimit)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var missing []string
	for _, req := range []struct{ key, val string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"JWT_SECRET", cfg.JWTSecret},
		{"APP_EMAIL_DOMAIN", cfg.EmailDomain},
	} {
		if req.val == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch cfg.RelayTransport {
	case TransportHTTP:
	case TransportSMTP:
		if cfg.MailHub == "" {
			return nil, errors.New("RELAY_TRANSPORT=smtp requires MAILHUB")
		}
	default:
		return nil, fmt.Errorf("invalid RELAY_TRANSPORT %q, use %q or %q", cfg.RelayTransport, TransportHTTP, TransportSMTP)
	}
	return cfg, nil
}

// flag accepts the YES/NO spelling used in existing .env files as well as
// anything strconv.ParseBool understands.
func flag(v *viper.Viper, key string) bool {
	if strings.EqualFold(strings.TrimSpace(v.GetString(key)), "YES") {
		return true
	}
	return v.GetBool(key)
}
