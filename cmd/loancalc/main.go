package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"loancalc/internal/backend"
	"loancalc/internal/cli"
	apphttp "loancalc/internal/http"
	applog "loancalc/internal/log"
	"loancalc/internal/services"
)

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	result, err := backend.NewFactory(logger).CreateBackend(startCtx, backendConfig)
	startCancel()
	if err != nil {
		logger.Error("Failed to initialize session backend", "error", err, "backend", cfg.SessionBackend)
		os.Exit(1)
	}

	svc := services.NewCalculatorService(result.Store, result.Publisher, cfg.Currency())

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             applog.New(applog.Config{Component: applog.ComponentHTTP, Handler: logger.Handler()}),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting loancalc server",
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
		"default_currency", cfg.Currency(),
		"export_enabled", svc.ExportEnabled())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = result.Cleanup()
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
