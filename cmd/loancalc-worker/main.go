package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"loancalc/internal/amqp"
	"loancalc/internal/cache"
	"loancalc/internal/cli"
	"loancalc/internal/core"
	"loancalc/internal/sheets"
	gsheet "loancalc/internal/sheets/google"
	memsheet "loancalc/internal/sheets/memory"
	"loancalc/internal/worker"
)

const sweepInterval = 10 * time.Minute

// loggedSheet is the development writer: rows stay in memory and are
// echoed to the log.
type loggedSheet struct {
	*memsheet.Store
	logger *slog.Logger
}

func (s loggedSheet) AppendComparison(ctx context.Context, sessionID string, cmp core.Comparison) (string, error) {
	ref, err := s.Store.AppendComparison(ctx, sessionID, cmp)
	if err != nil {
		return "", err
	}
	for _, row := range sheets.ComparisonRows(sessionID, cmp) {
		s.logger.InfoContext(ctx, "Comparison row", "range", ref, "row", row)
	}
	return ref, nil
}

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting loancalc-worker")

	if !cfg.ExportEnabled() {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	var writer sheets.ComparisonWriter
	if cfg.GoogleSpreadsheetID != "" {
		initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := gsheet.New(initCtx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		initCancel()
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets writer initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		writer = loggedSheet{Store: memsheet.New(), logger: logger}
		logger.Info("No GOOGLE_SPREADSHEET_ID provided - writing comparisons to an in-memory sheet")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	exportWorker := worker.NewExportWorker(writer)
	caches := cache.NewManager()
	caches.Register(exportWorker.Recent())

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeComparisonExports(gctx, exportWorker.HandleExportMessage)
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if n := caches.Sweep(); n > 0 {
					logger.Debug("Expired export markers dropped", "entries_removed", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", "error", err)
		_ = amqpClient.Close()
		os.Exit(1)
	}

	<-done
	logger.Info("Worker shutdown complete")
}
