package token

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/chat-archiver/telemetry"
)

// StartValidator launches a goroutine that periodically sweeps every live
// cached token and validates it against the provider. Invalid tokens are
// evicted inside Validate; the sweep also reconciles orphaned reverse
// entries left by a crash between the pair writes.
func StartValidator(ctx context.Context, m *Manager, interval time.Duration) {
	if interval <= 0 {
		interval = 50 * time.Minute
	}
	logger := slog.Default().With(slog.String("component", "token_validator"))
	go func() {
		for {
			sweep(ctx, m, logger)

			// Jitter the wake-up to spread load across instances.
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter
			jitter := time.Duration(rand.Int63n(int64(interval / 10)))
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval + jitter):
			}
		}
	}()
}

func sweep(ctx context.Context, m *Manager, logger *slog.Logger) {
	tokens, err := m.ActiveTokens(ctx)
	if err != nil {
		logger.Warn("token enumeration failed", slog.Any("err", err))
		return
	}
	evicted := 0
	for _, tok := range tokens {
		if ctx.Err() != nil {
			return
		}
		vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := m.Validate(vctx, tok)
		cancel()
		if err != nil {
			evicted++
			telemetry.TokenEvictions.Inc()
			if !errors.Is(err, ErrInvalid) {
				logger.Warn("token validation request failed", slog.Any("err", err))
			}
		}
	}
	logger.Info("token sweep complete", slog.Int("checked", len(tokens)), slog.Int("evicted", evicted))
}
