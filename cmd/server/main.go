package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"docdash/internal/app"
	"docdash/internal/config"
	"docdash/internal/handler"
	"docdash/internal/logging"
	"docdash/internal/metrics"
	"docdash/internal/resilience"
	"docdash/internal/router"
	"docdash/internal/service"
	"docdash/internal/session"
)

const (
	sessionCleanupInterval = time.Minute
	shutdownTimeout        = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Log, cfg.Server.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize gateway
	pm := metrics.NewPipelineMetrics()
	guard := resilience.NewGuard(cfg.Resilience, logger)
	gw, err := app.NewGateway(cfg, guard)
	if err != nil {
		return err
	}

	// Initialize services
	pipeline, err := app.NewPipeline(cfg, gw, pm, logger)
	if err != nil {
		return err
	}
	sessions := session.NewManager(&cfg.Session, pm, logger)
	go sessions.Run(ctx, sessionCleanupInterval)
	dashboardSvc := service.NewDashboardService(sessions, pipeline)

	// Initialize handlers
	sessionH := handler.NewSessionHandler(dashboardSvc, cfg.Upload.MaxFileSizeBytes())
	healthH := handler.NewHealthHandler(gw.Ping)

	// Setup router
	r := router.Setup(logger, cfg.CORS.AllowedOrigins, sessionH, healthH, pm.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("gateway_mode", cfg.Gateway.Mode),
			zap.Int("max_attempts", cfg.Poll.MaxAttempts),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
