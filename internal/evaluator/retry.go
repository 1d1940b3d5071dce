package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/adrianpk/celoeval/internal/logger"
	"github.com/adrianpk/celoeval/internal/report"
	"golang.org/x/time/rate"
)

// retryingClient paces calls with a token bucket and retries failed
// generations a fixed number of times. Once attempts run out it answers
// with an "Error: ..." text instead of an error; only context
// cancellation is returned as an error.
type retryingClient struct {
	next     Client
	limiter  *rate.Limiter
	attempts int
	delay    time.Duration
}

// WithRetry wraps next with the rate limit and retry policy from cfg.
func WithRetry(next Client, cfg LLM) Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = DefaultRPM
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return &retryingClient{
		next:     next,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		attempts: attempts,
		delay:    cfg.RetryDelay,
	}
}

func (r *retryingClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		out, err := r.next.Generate(ctx, prompt, opts)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			logger.Log.Warn("Generation interrupted")
			return "", ctx.Err()
		}

		lastErr = err
		logger.Log.Errorf("Generation failed (attempt %d/%d): %v", attempt, r.attempts, err)

		if attempt < r.attempts {
			logger.Log.Infof("Retrying in %s...", r.delay)
			if err := sleepContext(ctx, r.delay); err != nil {
				return "", err
			}
		}
	}

	logger.Log.Error("All retry attempts failed")
	return fmt.Sprintf("%s %v", report.ErrorPrefix, lastErr), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
