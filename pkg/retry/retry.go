// Package retry runs calls against external systems with a bounded exponential
// backoff. Every attempt gets its own timeout, and only errors classified as
// transient are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

// Config holds the retry policy for a single call site.
type Config struct {
	MaxRetries      int           // Retries after the first attempt
	InitialInterval time.Duration // Delay before the first retry
	MaxInterval     time.Duration // Upper bound for a single delay
	CallTimeout     time.Duration // Timeout applied to every attempt
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		CallTimeout:     10 * time.Second,
	}
}

// Validate checks the policy for values that would make Do misbehave.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("invalid max retries: must not be negative")
	}
	if c.InitialInterval <= 0 {
		return errors.New("invalid initial interval: must be greater than 0")
	}
	if c.MaxInterval < c.InitialInterval {
		return errors.New("invalid max interval: must not be less than initial interval")
	}
	if c.CallTimeout <= 0 {
		return errors.New("invalid call timeout: must be greater than 0")
	}
	return nil
}

// IsRetryable reports whether err is worth another attempt.
//
// Unavailable sources are always retried. Write rejections are retried only when
// marked transient. Missing blocks, context errors and unclassified errors are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, stateroot.ErrSourceUnavailable):
		return true
	case errors.Is(err, stateroot.ErrWriteRejected):
		return stateroot.IsTransient(err)
	default:
		return false
	}
}

// NotifyFunc is called before sleeping ahead of a retry.
type NotifyFunc func(err error, attempt int, next time.Duration)

// Do runs op until it succeeds, fails permanently, ctx is done, or the retry
// budget is exhausted. The last error is returned.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error, notify NotifyFunc) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, notify)
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](
	ctx context.Context,
	cfg Config,
	op func(ctx context.Context) (T, error),
	notify NotifyFunc,
) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)

	attempt := 0
	v, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()

		v, err := op(callCtx)
		if err == nil {
			return v, nil
		}
		// A per-attempt timeout is a transport failure unless the caller gave up.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, stateroot.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", stateroot.ErrSourceUnavailable, err)
		}
		if !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy, func(err error, next time.Duration) {
		if notify != nil {
			notify(err, attempt, next)
		}
	})
	return v, err
}
