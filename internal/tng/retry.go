package tng

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"subhalo-pipeline/internal/model"
)

// withRetry runs op until it succeeds, fails with a non-transient error or
// runs out of attempts. Only errors wrapping model.ErrTransient are retried.
func (c *Client) withRetry(ctx context.Context, what string, op func() error) error {
	cfg := c.Retry
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, model.ErrTransient) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := nextDelay(cfg, attempt)
		c.logger().Warn("transient fetch failure, retrying",
			zap.String("request", what),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return err
}

// nextDelay calculates the backoff after the given (1-based) attempt
func nextDelay(cfg model.RetryConfig, attempt int) time.Duration {
	mult := cfg.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1)))

	// Cap at max delay
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	// ±10% jitter
	if cfg.Jitter && delay > 0 {
		delay += time.Duration(float64(delay) * 0.2 * (rand.Float64() - 0.5))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
