package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/metrics"
	"github.com/ava-labs/stateroot-syncer/pkg/retry"
)

// RetryingReader wraps a Reader with the retry policy.
type RetryingReader struct {
	inner   Reader
	cfg     retry.Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

var _ Reader = (*RetryingReader)(nil)

// NewRetrying creates a RetryingReader. metrics may be nil.
func NewRetrying(inner Reader, cfg retry.Config, log *zap.SugaredLogger, m *metrics.Metrics) *RetryingReader {
	return &RetryingReader{inner: inner, cfg: cfg, log: log, metrics: m}
}

// Inner returns the underlying Reader.
func (r *RetryingReader) Inner() Reader {
	return r.inner
}

func (r *RetryingReader) CurrentFinalized(ctx context.Context) (uint64, error) {
	return retry.DoValue(ctx, r.cfg, r.inner.CurrentFinalized, r.notify("current_finalized", 0))
}

func (r *RetryingReader) RootOf(ctx context.Context, n uint64) (common.Hash, error) {
	return retry.DoValue(ctx, r.cfg, func(ctx context.Context) (common.Hash, error) {
		return r.inner.RootOf(ctx, n)
	}, r.notify("root_of", n))
}

func (r *RetryingReader) notify(op string, n uint64) retry.NotifyFunc {
	return func(err error, attempt int, next time.Duration) {
		r.metrics.IncRetry(op)
		r.log.Warnw("ledger call failed, retrying",
			"op", op,
			"block", n,
			"attempt", attempt,
			"maxRetries", r.cfg.MaxRetries,
			"backoff", next,
			"error", err,
		)
	}
}
