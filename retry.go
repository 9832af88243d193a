package sqlitemgmt

import (
	"context"
	"log/slog"

	"github.com/sethvargo/go-retry"
)

// withRetry runs fn, retrying it while it fails with SQLITE_BUSY or SQLITE_LOCKED. fn must be
// safe to repeat: callers wrap whole transactions, never single statements inside one.
func (m *Manager) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.cfg.busyRetries == 0 {
		return fn(ctx)
	}
	// A fresh backoff per call; backoffs are stateful.
	backoff := retry.WithMaxRetries(
		m.cfg.busyRetries,
		retry.WithCappedDuration(m.cfg.busyMax, retry.NewExponential(m.cfg.busyBase)),
	)
	var attempt int
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && isBusy(err) {
			m.logger.DebugContext(ctx, "database is busy, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return retry.RetryableError(err)
		}
		return err
	})
}
