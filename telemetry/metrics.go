// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	MessagesIngested  = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_ingested_total", Help: "Number of chat messages buffered for persistence"})
	ParseFailures     = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_parse_failures_total", Help: "Number of protocol lines that failed to parse"})
	DecodeFailures    = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_tag_decode_failures_total", Help: "Number of events skipped due to tag decode failures"})
	PongReplies       = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_pong_replies_total", Help: "Number of PONG replies sent"})
	FlushBatches      = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_flush_batches_total", Help: "Number of flush cycles that attempted a commit"})
	FlushFailures     = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_flush_failures_total", Help: "Number of flush commits that failed (batch dropped)"})
	ClearMsgFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_clearmsg_store_fallbacks_total", Help: "Number of CLEARMSG events resolved against the durable store"})
	TokenRefreshes    = promauto.NewCounter(prometheus.CounterOpts{Name: "oauth_token_refreshes_total", Help: "Number of successful access token refreshes"})
	TokenEvictions    = promauto.NewCounter(prometheus.CounterOpts{Name: "oauth_token_evictions_total", Help: "Number of cached tokens evicted by the validator sweep"})

	// Histograms (seconds)
	FlushDuration prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_flush_duration_seconds", Help: "Flush commit duration seconds", Buckets: prometheus.DefBuckets})

	// Gauges
	BufferDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_buffer_depth", Help: "Messages currently awaiting flush"})
)

// SetBufferDepth records the number of messages awaiting flush.
func SetBufferDepth(n int) {
	BufferDepthGauge.Set(float64(n))
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
