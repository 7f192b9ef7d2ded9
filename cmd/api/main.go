package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/api/handlers"
	"github.com/pratik-mahalle/secwatch/internal/api/middleware"
	"github.com/pratik-mahalle/secwatch/internal/api/router"
	"github.com/pratik-mahalle/secwatch/internal/config"
	"github.com/pratik-mahalle/secwatch/internal/detector"
	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/pkg/validator"
	"github.com/pratik-mahalle/secwatch/internal/repository/postgres"
	"github.com/pratik-mahalle/secwatch/internal/services"
	"github.com/pratik-mahalle/secwatch/internal/worker"
	"github.com/pratik-mahalle/secwatch/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})

	if err := run(cfg, log); err != nil {
		log.ErrorWithErr(err, "Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx := context.Background()

	// Alert history database
	var db *sql.DB
	if cfg.HistoryEnabled() {
		var err error
		db, err = postgres.New(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		migrationsFS, err := migrations.FS(cfg.Database.Driver)
		if err != nil {
			return err
		}
		applied, err := postgres.RunMigrations(db, migrationsFS)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.WithFields(map[string]interface{}{
			"driver":  cfg.Database.Driver,
			"applied": applied,
		}).Info("Database ready")
	} else {
		log.Warn("Alert history disabled")
	}

	// Sinks and dispatcher
	built, err := buildSinks(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Close(); err != nil {
			log.ErrorWithErr(err, "Failed to close sink clients")
		}
	}()

	dispatcher, err := services.NewAlertDispatcher(built.Sinks, services.DispatcherConfig{
		NotifySeverities: cfg.Email.NotifySeverities,
		Timeouts:         sinkTimeouts(cfg.Timeouts),
		MaxConcurrency:   cfg.Dispatch.MaxConcurrentSinks,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// Request classification
	tracker := detector.NewRateWindowTracker(cfg.Security.RateWindow, cfg.Security.TrackerMaxKeys)
	classifier := detector.NewClassifier(detector.Config{
		AdminPrefix: cfg.Security.AdminPrefix,
		LoginPath:   cfg.Security.LoginPath,
	}, tracker)

	limiter := middleware.NewRateLimiter(cfg.Security.APIRateLimit, cfg.Security.APIRateBurst)

	sweeper, err := worker.NewTrackerSweeper(tracker, cfg.Security.SweepSchedule, log, limiter)
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	trust, err := detector.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	opts := router.Options{Limiter: limiter, ProxyTrust: trust}
	if cfg.Security.MonitorRequests {
		opts.Monitor = middleware.NewSecurityMonitor(classifier, dispatcher, middleware.SecurityMonitorConfig{
			JWTSecret:   cfg.Auth.JWTSecret,
			TokenCookie: cfg.Auth.TokenCookie,
		}, log)
	}
	if cfg.Server.UpstreamURL != "" {
		opts.Upstream, err = router.NewUpstreamProxy(cfg.Server.UpstreamURL, log)
		if err != nil {
			return err
		}
	}

	h := &router.Handlers{
		Health: handlers.NewHealthHandler(db, log),
		Alert:  handlers.NewAlertHandler(dispatcher, built.HistoryRepo, log, validator.New()),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.New(cfg, log, h, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":     srv.Addr,
			"env":      cfg.Server.Environment,
			"upstream": cfg.Server.UpstreamURL,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		log.WithFields(map[string]interface{}{"signal": sig.String()}).Info("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithErr(err, "Server forced to shutdown")
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.ErrorWithErr(err, "Gave up waiting for in-flight alerts")
	}

	log.Info("Server stopped")
	return nil
}

func sinkTimeouts(t config.SinkTimeouts) map[alert.Sink]time.Duration {
	return map[alert.Sink]time.Duration{
		alert.SinkLog:      t.Log,
		alert.SinkMetrics:  t.Metrics,
		alert.SinkPublish:  t.Publish,
		alert.SinkStore:    t.Store,
		alert.SinkHistory:  t.History,
		alert.SinkNotify:   t.Notify,
		alert.SinkMitigate: t.Mitigate,
	}
}
