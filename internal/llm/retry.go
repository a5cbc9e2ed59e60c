package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy bounds the retries around one external call.
type Policy struct {
	Attempts  int           // total attempts, at least 1
	BaseDelay time.Duration // wait before attempt n+1 is BaseDelay * 2^(n-1)
	Timeout   time.Duration // per-attempt deadline; zero means none
}

// DefaultPolicy is three attempts, 1s/2s backoff, 60s per attempt.
var DefaultPolicy = Policy{Attempts: 3, BaseDelay: time.Second, Timeout: 60 * time.Second}

// Retry runs fn until it succeeds, the attempts are used up, or ctx ends.
// The last error is returned wrapped with the attempt count.
func Retry[T any](ctx context.Context, p Policy, log *zap.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.Attempts, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := p.BaseDelay * time.Duration(1<<(i-1))
			log.Info("retrying external call", zap.String("op", op), zap.Int("attempt", i+1), zap.Duration("wait", wait))
			if err := sleep(ctx, wait); err != nil {
				return zero, err
			}
		}

		v, err := attempt(ctx, p.Timeout, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err
		log.Warn("external call failed", zap.String("op", op), zap.Int("attempt", i+1), zap.Error(err))
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
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

// CompleteJSON calls c through Retry and parses each answer as a JSON object
// carrying every key in required. Unusable answers count as failed attempts.
func CompleteJSON(ctx context.Context, c Client, req Request, p Policy, required []string, log *zap.Logger, op string) (map[string]any, error) {
	return Retry(ctx, p, log, op, func(ctx context.Context) (map[string]any, error) {
		text, err := c.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		obj, err := ExtractJSON(text)
		if err != nil {
			return nil, err
		}
		for _, k := range required {
			if _, ok := obj[k]; !ok {
				return nil, fmt.Errorf("%w: missing required field %q", ErrParse, k)
			}
		}
		return obj, nil
	})
}
