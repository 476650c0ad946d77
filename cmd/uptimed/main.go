package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/check"
	"github.com/hamed0406/uptimemonitor/internal/config"
	"github.com/hamed0406/uptimemonitor/internal/httpapi"
	apimw "github.com/hamed0406/uptimemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemonitor/internal/logging"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("uptimed_failed", zap.Error(err))
		_ = logger.Sync()
		log.Fatal(err)
	}
	logger.Info("uptimed_stopped")
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	var observers []check.Observer
	if slack := notify.NewSlack(cfg.SlackWebhookURL); slack != nil {
		observers = append(observers, notify.NewAlerter(logger, notify.Multi{slack}, notify.AlerterConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
		}))
		logger.Info("alerts_enabled", zap.Duration("cooldown", cfg.AlertCooldown), zap.Bool("on_recovery", cfg.AlertOnRecovery))
	}

	exec := check.New(logger, store, probe.NewRegistry(), check.Config{
		Window:      cfg.UptimeWindow,
		Concurrency: cfg.MaxConcurrentChecks,
	}, observers...)

	sched := scheduler.New(logger, store, exec, scheduler.Config{Resync: cfg.ResyncInterval})
	if err := sched.Start(ctx); err != nil {
		// Jobs come back on the next sync.
		logger.Warn("scheduler_initial_sync_failed", zap.Error(err))
	}

	api := httpapi.NewServer(logger, store, exec, sched)
	handler := api.Router(
		apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
		cfg.AllowedOrigins,
		httpapi.Limits{
			PublicRPM:   cfg.PublicRPM,
			PublicBurst: cfg.PublicBurst,
			AdminRPM:    cfg.AdminRPM,
			AdminBurst:  cfg.AdminBurst,
			TrustProxy:  cfg.TrustProxy,
		},
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-serveErr:
		if err != nil {
			_ = sched.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	// Stop the API first so no new checks are requested, then drain the scheduler.
	var errs error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}
	return errs
}
