package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fmt"

	"github.com/joho/godotenv"

	httpadapter "dripmail/internal/adapter/http"
	"dripmail/internal/adapter/mailer"
	"dripmail/internal/adapter/postgres"
	"dripmail/internal/adapter/queue"
	"dripmail/internal/adapter/usecase"
	"dripmail/internal/config"
	"dripmail/internal/core/port"
	"dripmail/internal/db"
)

// main is the entry point of the dripmail service. It loads configuration,
// optionally runs database migrations, initializes the database pool,
// delay queue and dispatch engine, then starts the HTTP server. On
// receiving a termination signal it gracefully shuts down the server and
// drains the worker pool.
func main() {
	exitCode := 1
	defer func() {
		if r := recover(); r != nil {
			panic(r)
		} else {
			os.Exit(exitCode)
		}
	}()

	// A local .env is optional; OS environment always wins.
	_ = godotenv.Load()

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	var logger *slog.Logger
	{
		// Initialise structured logger based on configuration.
		var handler slog.Handler
		level := cfg.Log.SlogLevel()
		switch cfg.Log.SlogFormat() {
		case "json":
			handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		default:
			handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		}
		logger = slog.New(handler)
	}

	// Optionally run migrations if configured. We use the Psql sub-config.
	if cfg.Psql.RunMigrations {
		if err = db.Migrate(cfg.Psql.Addr.String()); err != nil {
			logger.Error("migration error", slog.Any("error", err))
		} else {
			logger.Info("migrations applied successfully")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.Psql)
	if err != nil {
		logger.Error("database connection error", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepository(pool)
	counterRepo := postgres.NewCounterRepository(pool)

	delayQueue := queue.New(queue.Config{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BackoffBase: cfg.Dispatch.BackoffBase,
	}, logger)
	defer delayQueue.Close()

	var sender port.MessageSender
	switch cfg.Mailer {
	case "ses":
		sender = mailer.NewSESSender(cfg.SES, logger)
	default:
		sender = mailer.NewSMTPSender(cfg.SMTP, logger)
	}

	limiter := usecase.NewRateLimiter(counterRepo, cfg.Dispatch.GlobalHourly, cfg.Dispatch.SenderHourly)
	scheduler := usecase.NewScheduler(jobRepo, delayQueue, logger)
	dispatcher := usecase.NewDispatcher(jobRepo, delayQueue, sender, limiter,
		cfg.Dispatch.WorkerConcurrency, cfg.Dispatch.MinSendInterval, logger)
	dispatcher.Start(ctx)

	// Sweep expired rate counters so the table stays bounded.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := counterRepo.DeleteExpired(ctx); err != nil {
					logger.Warn("counter sweep error", slog.Any("error", err))
				}
			}
		}
	}()

	handler := httpadapter.NewHandler(scheduler, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("server listening", slog.Int("port", int(cfg.HTTP.Port)))
		if err = srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	value := <-quit
	exitCode = 128 + int(value.(syscall.Signal))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	} else {
		logger.Info("server gracefully stopped")
	}

	// Stop pulling new jobs and let in-flight sends finish.
	cancel()
	dispatcher.Wait()
	logger.Info("dispatcher drained")
}
