package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aradsms/ims_service/internal/ims_service/domain"
	"github.com/aradsms/ims_service/internal/ims_service/repository/postgres"
	httptransport "github.com/aradsms/ims_service/internal/ims_service/transport/http"
	"github.com/aradsms/ims_service/internal/platform/config"
	"github.com/aradsms/ims_service/internal/platform/database"
	"github.com/aradsms/ims_service/internal/platform/logger"
	"github.com/aradsms/ims_service/internal/platform/supervisor"
)

const serviceName = "ims_service"

func main() {
	if err := run(); err != nil {
		slog.Error("IMS service exited", "service", serviceName, "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(appLogger)
	appLogger.Info("IMS service starting...", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.Pool(ctx, cfg.DSN(), cfg.PGMaxConns)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL", "host", cfg.PGHost, "database", cfg.PGDatabase, "max_conns", cfg.PGMaxConns)

	validation := domain.DefaultValidationOptions
	validation.Strict = cfg.StrictValidation

	subscriberRepo := postgres.NewPgSubscriberRepository(dbPool, appLogger)
	subscriberHandler := httptransport.NewSubscriberHandler(subscriberRepo, appLogger, validation)
	router := httptransport.NewRouter(subscriberHandler, dbPool, appLogger, httptransport.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return supervisor.Run(ctx, appLogger, supervisor.Task{
		Name: "http_server",
		Run: func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() {
				appLogger.Info(fmt.Sprintf("IMS server listening on port %d", cfg.Port))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			appLogger.Info("Shutdown signal received, shutting down HTTP server...")
			ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancelShutdown()
			if err := httpServer.Shutdown(ctxShutdown); err != nil {
				return fmt.Errorf("HTTP server shutdown: %w", err)
			}
			appLogger.Info("HTTP server shut down gracefully.")
			return nil
		},
	})
}
