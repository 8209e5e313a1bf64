package windowsync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/ledger"
	"github.com/ava-labs/stateroot-syncer/pkg/oracle"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

// Synchronizer moves the oracle window forward one step at a time. It holds
// no cursor itself: callers pass the current cursor in and keep the one
// returned.
type Synchronizer struct {
	ledger     ledger.Reader
	oracle     oracle.Writer
	windowSize uint64
	log        *zap.SugaredLogger
}

// NewSynchronizer creates a Synchronizer for a window of windowSize roots.
func NewSynchronizer(
	reader ledger.Reader,
	writer oracle.Writer,
	windowSize uint64,
	log *zap.SugaredLogger,
) (*Synchronizer, error) {
	if reader == nil {
		return nil, errors.New("ledger reader is required")
	}
	if writer == nil {
		return nil, errors.New("oracle writer is required")
	}
	if windowSize == 0 {
		return nil, errors.New("invalid window size: must be greater than 0")
	}
	return &Synchronizer{ledger: reader, oracle: writer, windowSize: windowSize, log: log}, nil
}

// WindowSize returns W.
func (s *Synchronizer) WindowSize() uint64 {
	return s.windowSize
}

// Bootstrap publishes the window ending at the current finalized block as a
// single batch and returns a cursor at that block. Calling it again
// republishes the same contents.
func (s *Synchronizer) Bootstrap(ctx context.Context) (stateroot.Cursor, stateroot.WindowUpdate, error) {
	fb, err := s.finalized(ctx)
	if err != nil {
		return stateroot.Cursor{}, stateroot.WindowUpdate{}, err
	}
	return s.bootstrapTo(ctx, fb)
}

// Advance moves the window from cursor to the current finalized block.
//
// Roots entering the window are published in one batch, then roots leaving it
// are purged in one batch. If the finalized block has not moved past the
// cursor nothing is written. On any failure the input cursor is returned
// unchanged, so the next call derives the same ranges again.
func (s *Synchronizer) Advance(
	ctx context.Context,
	cursor stateroot.Cursor,
) (stateroot.Cursor, stateroot.WindowUpdate, error) {
	fb, err := s.finalized(ctx)
	if err != nil {
		return cursor, unchanged(cursor), err
	}
	return s.advanceTo(ctx, cursor, fb)
}

func (s *Synchronizer) finalized(ctx context.Context) (uint64, error) {
	fb, err := s.ledger.CurrentFinalized(ctx)
	if err != nil {
		return 0, stageErr(StageFinalized, err)
	}
	return fb, nil
}

// bootstrapTo publishes the whole window ending at fb.
func (s *Synchronizer) bootstrapTo(ctx context.Context, fb uint64) (stateroot.Cursor, stateroot.WindowUpdate, error) {
	r := InitialRange(fb, s.windowSize)
	entries, err := s.fetch(ctx, r)
	if err != nil {
		return stateroot.Cursor{}, stateroot.WindowUpdate{}, err
	}
	if err := s.oracle.Publish(ctx, entries); err != nil {
		return stateroot.Cursor{}, stateroot.WindowUpdate{}, stageErr(StagePublish, fmt.Errorf("publish %s: %w", r, err))
	}

	next := stateroot.Cursor{LastFinalized: fb}
	s.log.Infow("window bootstrapped",
		"window", r.String(),
		"published", len(entries),
	)
	return next, stateroot.WindowUpdate{
		Current:   next,
		Bootstrap: true,
		Added:     entries,
	}, nil
}

// advanceTo moves the window from cursor to fb. The ranges depend only on the
// two heights, so repeating a call after a failure issues the same writes.
func (s *Synchronizer) advanceTo(
	ctx context.Context,
	cursor stateroot.Cursor,
	fb uint64,
) (stateroot.Cursor, stateroot.WindowUpdate, error) {
	if fb <= cursor.LastFinalized {
		if fb < cursor.LastFinalized {
			s.log.Warnw("ledger reports finalized block behind cursor",
				"finalized", fb,
				"cursor", cursor.LastFinalized,
			)
		}
		return cursor, unchanged(cursor), nil
	}

	add, evict := Plan(cursor.LastFinalized, fb, s.windowSize)

	entries, err := s.fetch(ctx, add)
	if err != nil {
		return cursor, unchanged(cursor), err
	}
	if len(entries) > 0 {
		if err := s.oracle.Publish(ctx, entries); err != nil {
			return cursor, unchanged(cursor), stageErr(StagePublish, fmt.Errorf("publish %s: %w", add, err))
		}
	}

	evicted := evict.Numbers()
	if len(evicted) > 0 {
		if err := s.oracle.Purge(ctx, evicted); err != nil {
			return cursor, unchanged(cursor), stageErr(StagePurge, fmt.Errorf("purge %s: %w", evict, err))
		}
	}

	next := stateroot.Cursor{LastFinalized: fb}
	s.log.Debugw("window advanced",
		"from", cursor.LastFinalized,
		"to", fb,
		"added", add.String(),
		"evicted", evict.String(),
	)
	return next, stateroot.WindowUpdate{
		Previous: cursor,
		Current:  next,
		Added:    entries,
		Evicted:  evicted,
	}, nil
}

func unchanged(cursor stateroot.Cursor) stateroot.WindowUpdate {
	return stateroot.WindowUpdate{Previous: cursor, Current: cursor}
}

// fetch reads the root of every block in r in ascending order.
func (s *Synchronizer) fetch(ctx context.Context, r stateroot.Range) ([]stateroot.Entry, error) {
	numbers := r.Numbers()
	entries := make([]stateroot.Entry, 0, len(numbers))
	for _, n := range numbers {
		root, err := s.ledger.RootOf(ctx, n)
		if err != nil {
			return nil, stageErr(StageFetch, fmt.Errorf("root of block %d: %w", n, err))
		}
		entries = append(entries, stateroot.Entry{Number: n, Root: root})
	}
	return entries, nil
}
