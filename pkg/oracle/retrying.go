package oracle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/metrics"
	"github.com/ava-labs/stateroot-syncer/pkg/retry"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

const (
	opPublish = "publish"
	opPurge   = "purge"
)

// RetryingWriter wraps a Writer with the retry policy and records every
// attempt in metrics.
type RetryingWriter struct {
	inner   Writer
	cfg     retry.Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

var _ Writer = (*RetryingWriter)(nil)

// NewRetrying creates a RetryingWriter. metrics may be nil.
func NewRetrying(inner Writer, cfg retry.Config, log *zap.SugaredLogger, m *metrics.Metrics) *RetryingWriter {
	return &RetryingWriter{inner: inner, cfg: cfg, log: log, metrics: m}
}

// Inner returns the underlying Writer.
func (w *RetryingWriter) Inner() Writer {
	return w.inner
}

// Publish validates the batch once and publishes it with retries.
func (w *RetryingWriter) Publish(ctx context.Context, entries []stateroot.Entry) error {
	if err := ValidateEntries(entries); err != nil {
		return err
	}
	return retry.Do(ctx, w.cfg, func(ctx context.Context) error {
		return w.observe(opPublish, func() error { return w.inner.Publish(ctx, entries) })
	}, w.notify(opPublish, len(entries)))
}

// Purge deletes the batch with retries.
func (w *RetryingWriter) Purge(ctx context.Context, numbers []uint64) error {
	return retry.Do(ctx, w.cfg, func(ctx context.Context) error {
		return w.observe(opPurge, func() error { return w.inner.Purge(ctx, numbers) })
	}, w.notify(opPurge, len(numbers)))
}

func (w *RetryingWriter) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	w.metrics.RecordOracleWrite(op, err, time.Since(start).Seconds())
	return err
}

func (w *RetryingWriter) notify(op string, size int) retry.NotifyFunc {
	return func(err error, attempt int, next time.Duration) {
		w.metrics.IncRetry(op)
		w.log.Warnw("oracle write failed, retrying",
			"op", op,
			"batchSize", size,
			"attempt", attempt,
			"maxRetries", w.cfg.MaxRetries,
			"backoff", next,
			"error", err,
		)
	}
}
