package bootstrap

import (
	"context"
	"math"
	"time"
)

// Backoff describes an exponential retry schedule.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Delay returns the wait before retry N (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 || b.InitialDelay <= 0 {
		return max(b.InitialDelay, 0)
	}
	mult := b.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(b.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
