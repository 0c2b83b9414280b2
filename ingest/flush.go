package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/chat-archiver/db"
	"github.com/onnwee/chat-archiver/telemetry"
)

// StartFlusher launches the timer task that drains the buffer on a fixed
// interval and commits each batch in one transaction. The buffer is cleared
// whether or not the commit succeeds: a failed flush drops that batch rather
// than growing memory. On shutdown one final flush runs before the goroutine
// exits.
func StartFlusher(ctx context.Context, database *sql.DB, buf *Buffer, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Final flush with its own deadline; the parent is already cancelled.
				fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
				flushOnce(fctx, database, buf)
				cancel()
				return
			case <-ticker.C:
				flushOnce(ctx, database, buf)
			}
		}
	}()
	return done
}

func flushOnce(ctx context.Context, database *sql.DB, buf *Buffer) {
	messages, users := buf.Drain()
	if len(messages) == 0 {
		return
	}

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "ingest", "flush",
		attribute.Int("messages", len(messages)),
		attribute.Int("users", len(users)),
	)
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "flush"))

	telemetry.FlushBatches.Inc()
	var err error
	d := telemetry.TimeFunc(telemetry.FlushDuration, func() {
		err = db.SaveChatBatch(ctx, database, messages, users)
	})
	if err != nil {
		telemetry.FlushFailures.Inc()
		telemetry.RecordError(span, err)
		logger.Error("flush failed, batch dropped",
			slog.Int("messages", len(messages)),
			slog.Int("users", len(users)),
			slog.Any("err", err))
		return
	}
	telemetry.SetSpanSuccess(span)
	logger.Info("flushed batch",
		slog.Int("messages", len(messages)),
		slog.Int("users", len(users)),
		slog.Duration("took", d))
}
