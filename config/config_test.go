package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"DATABASE_URL", "JWT_SECRET", "TOKEN_TTL", "APP_EMAIL_DOMAIN", "RELAY_TRANSPORT",
	"POSTAL_API_URL", "POSTAL_API_KEY", "MAILHUB", "AUTHUSER", "AUTHPASS", "SKIP_TLS_VERIFY",
	"RELAY_TIMEOUT", "DAILY_MAIL_LIMIT", "SCHEDULER_INTERVAL", "PORT", "UPLOAD_DIR",
	"CORS_ORIGIN", "LOG_LEVEL", "BACKEND_URL", "NEXT_PUBLIC_BACKEND_URL",
}

// setEnv clears every key the package reads, then applies env.
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func required() map[string]string {
	return map[string]string{
		"DATABASE_URL":     "postgres://localhost/webmail?sslmode=disable",
		"JWT_SECRET":       "s3cret",
		"APP_EMAIL_DOMAIN": "@Mail.Test",
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, required())

	cfg, err := fromViper(newViper())
	require.NoError(t, err)
	assert.Equal(t, "mail.test", cfg.EmailDomain)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, TransportHTTP, cfg.RelayTransport)
	assert.Equal(t, 15*time.Second, cfg.RelayTimeout)
	assert.Equal(t, 2000, cfg.DailyMailLimit)
	assert.Equal(t, 30*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "./uploads", cfg.UploadDir)
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "http://localhost:8080", cfg.BackendURL)
	assert.False(t, cfg.PostalConfigured())
	assert.False(t, cfg.SkipTLSVerify)
}

func TestLoad_Overrides(t *testing.T) {
	env := required()
	env["POSTAL_API_URL"] = "https://postal.test/api/v1/send/message"
	env["POSTAL_API_KEY"] = "key"
	env["RELAY_TIMEOUT"] = "3s"
	env["DAILY_MAIL_LIMIT"] = "50"
	env["SKIP_TLS_VERIFY"] = "YES"
	env["LOG_LEVEL"] = "debug"
	env["TOKEN_TTL"] = "2h"
	env["NEXT_PUBLIC_BACKEND_URL"] = "https://mail.test/"
	setEnv(t, env)

	cfg, err := fromViper(newViper())
	require.NoError(t, err)
	assert.True(t, cfg.PostalConfigured())
	assert.Equal(t, 3*time.Second, cfg.RelayTimeout)
	assert.Equal(t, 50, cfg.DailyMailLimit)
	assert.True(t, cfg.SkipTLSVerify)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "https://mail.test", cfg.BackendURL)
}

func TestLoad_InvalidDailyLimitFallsBack(t *testing.T) {
	env := required()
	env["DAILY_MAIL_LIMIT"] = "lots"
	setEnv(t, env)

	cfg, err := fromViper(newViper())
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.DailyMailLimit)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"nothing set", map[string]string{}, "DATABASE_URL, JWT_SECRET, APP_EMAIL_DOMAIN"},
		{"smtp without mailhub", merge(required(), map[string]string{"RELAY_TRANSPORT": "smtp"}), "MAILHUB"},
		{"unknown transport", merge(required(), map[string]string{"RELAY_TRANSPORT": "pigeon"}), "RELAY_TRANSPORT"},
		{"bad log level", merge(required(), map[string]string{"LOG_LEVEL": "loud"}), "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			_, err := fromViper(newViper())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_SMTPTransport(t *testing.T) {
	setEnv(t, merge(required(), map[string]string{"RELAY_TRANSPORT": "SMTP", "MAILHUB": "postal.test:25", "AUTHUSER": "u", "AUTHPASS": "p"}))

	cfg, err := fromViper(newViper())
	require.NoError(t, err)
	assert.Equal(t, TransportSMTP, cfg.RelayTransport)
	assert.Equal(t, "postal.test:25", cfg.MailHub)
}

func TestLoadClientConfig(t *testing.T) {
	setEnv(t, map[string]string{"BACKEND_URL": "http://api.test:9000/"})
	assert.Equal(t, "http://api.test:9000", LoadClientConfig().BackendURL)
}

func merge(a, b map[string]string) map[string]string {
	for k, v := range b {
		a[k] = v
	}
	return a
}
