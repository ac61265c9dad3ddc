package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Backoff is an exponential retry schedule with ±25% jitter
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff starts at a quarter second and caps at five
var DefaultBackoff = Backoff{Initial: 250 * time.Millisecond, Multiplier: 2, Max: 5 * time.Second}

// Delay returns the pause before retry number attempt (zero-based)
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt && (b.Max <= 0 || time.Duration(d) < b.Max); i++ {
		d *= b.Multiplier
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		d = float64(b.Max)
	}
	d += (rand.Float64() - 0.5) * 0.5 * d
	return time.Duration(d)
}

// OpenContext is Open retried with backoff until it succeeds or ctx ends, for
// databases that come up alongside the daemon. An unsupported DSN fails at once.
func OpenContext(ctx context.Context, dsn string, backoff Backoff, opts ...Option) (*Store, error) {
	if _, err := Dialector(dsn); err != nil {
		return nil, err
	}

	base := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(base)
	}

	for attempt := 0; ; attempt++ {
		store, err := Open(dsn, opts...)
		if err == nil {
			return store, nil
		}

		delay := backoff.Delay(attempt)
		base.logger.Warn("identity store unavailable, retrying",
			"attempt", attempt+1, "delay", delay.Round(time.Millisecond), "err", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (after %d attempts: %v)", err, attempt+1, ctx.Err())
		case <-time.After(delay):
		}
	}
}
