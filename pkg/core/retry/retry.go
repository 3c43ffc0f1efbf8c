// Package retry wraps outbound provider calls with bounded exponential backoff.
//
// Only failures classified as rate limits are retried. Attempt i (zero based)
// that fails with a rate limit waits BaseDelay × 2^i before the next attempt.
package retry

import (
	"context"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/vango-go/vai-wellness/pkg/core"
)

// Defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy configures retries.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration
	// Retryable classifies errors. Defaults to core.IsRateLimited.
	Retryable func(error) bool
	// Logger receives one debug record per retry.
	Logger *slog.Logger
}

// DefaultPolicy returns the standard policy: 3 attempts, 1s base delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Retryable == nil {
		p.Retryable = core.IsRateLimited
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
	return p
}

func (p Policy) backoff() goretry.Backoff {
	b := goretry.NewExponential(p.BaseDelay)
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. The last observed error is returned.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var (
		result  T
		attempt int
	)
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			result = v
			return nil
		}
		if !p.Retryable(err) {
			return err
		}
		if attempt < p.MaxAttempts {
			p.Logger.Debug("retrying after rate limit",
				"op", op,
				"attempt", attempt,
				"delay", p.BaseDelay<<(attempt-1),
				"err", err,
			)
		}
		return goretry.RetryableError(err)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
