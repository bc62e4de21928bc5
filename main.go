package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webmail/auth"
	"webmail/config"
	"webmail/database"
	"webmail/handlers"
	"webmail/services"
	"webmail/utils"
)

func main() {
	// Load configuration from .env and the environment
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("error loading configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("error connecting to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Apply database migrations
	if err := database.ApplyMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("error applying database migrations", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("init auth", "error", err)
		os.Exit(1)
	}

	relay, err := newRelay(cfg, logger)
	if err != nil {
		logger.Error("init mail relay", "error", err)
		os.Exit(1)
	}

	store := database.NewStore(db)
	quota := utils.NewSendQuota(cfg.DailyMailLimit, store)
	mail := services.NewMailService(store, relay, quota, logger)
	accounts := services.NewAccountService(store, tokens, cfg.EmailDomain, cfg.UploadDir, logger)

	scheduler := services.NewScheduler(mail, cfg.SchedulerInterval, logger)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handlers.NewRouter(handlers.Deps{
			Accounts:   accounts,
			Mail:       mail,
			Tokens:     tokens,
			DB:         store,
			UploadDir:  cfg.UploadDir,
			CORSOrigin: cfg.CORSOrigin,
			Logger:     logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr, "email_domain", cfg.EmailDomain)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
	<-schedulerDone
}

// newRelay picks the outbound transport. Without relay settings the server
// still starts and every send fails as unconfigured.
func newRelay(cfg *config.Config, logger *slog.Logger) (services.Relay, error) {
	if cfg.RelayTransport == config.TransportSMTP {
		relay, err := services.NewSMTPRelay(cfg.MailHub, cfg.AuthUser, cfg.AuthPass, cfg.SkipTLSVerify, cfg.RelayTimeout, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using SMTP relay", "mailhub", cfg.MailHub)
		return relay, nil
	}
	if !cfg.PostalConfigured() {
		logger.Warn("POSTAL_API_URL or POSTAL_API_KEY not set; sending is disabled")
		return nil, nil
	}
	logger.Info("using Postal HTTP relay", "url", cfg.PostalAPIURL)
	return services.NewPostalRelay(cfg.PostalAPIURL, cfg.PostalAPIKey, cfg.RelayTimeout), nil
}
