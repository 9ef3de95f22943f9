// Package worker turns consumed comparison export messages into sheet rows.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loancalc/internal/amqp"
	"loancalc/internal/cache"
	"loancalc/internal/sheets"
)

// recentExports bounds the redelivery guard.
const (
	recentExports   = 1024
	recentExportTTL = time.Hour
)

// ExportWorker appends each exported comparison to a ComparisonWriter.
type ExportWorker struct {
	writer sheets.ComparisonWriter
	recent *cache.LRUCache[string]
}

func NewExportWorker(writer sheets.ComparisonWriter) *ExportWorker {
	return &ExportWorker{
		writer: writer,
		recent: cache.NewLRUCache[string](recentExports, recentExportTTL),
	}
}

// Recent exposes the redelivery guard so a cache.Manager can sweep it.
func (w *ExportWorker) Recent() *cache.LRUCache[string] { return w.recent }

// HandleExportMessage writes one comparison. A message already written by
// this worker is acknowledged without writing it twice.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ComparisonExportMessage) error {
	key := msg.SessionID + "@" + msg.Comparison.ExportedAt.UTC().Format(time.RFC3339Nano)
	if ref, ok := w.recent.Get(key); ok {
		slog.InfoContext(ctx, "Skipping duplicate comparison export",
			"session_id", msg.SessionID, "range", ref)
		return nil
	}

	if len(msg.Comparison.Lines) == 0 {
		slog.InfoContext(ctx, "Comparison export has no valid entries", "session_id", msg.SessionID)
		return nil
	}

	ref, err := w.writer.AppendComparison(ctx, msg.SessionID, msg.Comparison)
	if err != nil {
		return fmt.Errorf("append comparison: %w", err)
	}
	w.recent.Set(key, ref)

	slog.InfoContext(ctx, "Comparison exported",
		"session_id", msg.SessionID,
		"entries", len(msg.Comparison.Lines),
		"minimum_id", msg.Comparison.MinimumID,
		"range", ref)
	return nil
}
