package windowsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/ledger"
	"github.com/ava-labs/stateroot-syncer/pkg/metrics"
)

// CursorSource exposes the cursor of a running loop.
type CursorSource interface {
	Cursor() (uint64, bool)
}

// StartLagWatchdog periodically compares ledger finality with the cursor and
// warns when the oracle falls more than maxLag blocks behind. It blocks until
// ctx is done.
func StartLagWatchdog(
	ctx context.Context,
	log *zap.SugaredLogger,
	reader ledger.Reader,
	cursors CursorSource,
	interval time.Duration,
	maxLag uint64,
	m *metrics.Metrics,
) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cursor, ok := cursors.Cursor()
			if !ok {
				continue
			}
			fb, err := reader.CurrentFinalized(ctx)
			if err != nil {
				log.Debugw("lag watchdog could not read finalized block", "error", err)
				continue
			}
			m.UpdateLag(fb, cursor)
			var lag uint64
			if fb > cursor {
				lag = fb - cursor
			}
			if lag > maxLag {
				log.Warnw("lag too large", "lag", lag, "finalized", fb, "cursor", cursor)
			}
		}
	}
}
