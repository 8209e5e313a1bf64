package windowsync

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/oracle/memory"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

func seq(lower, upper uint64) []uint64 {
	return stateroot.NewRange(lower, upper).Numbers()
}

func newTestSynchronizer(t *testing.T, ledger *fakeLedger, w uint64) (*Synchronizer, *recordingWriter) {
	t.Helper()
	writer := newRecordingWriter()
	s, err := NewSynchronizer(ledger, writer, w, zap.NewNop().Sugar())
	require.NoError(t, err)
	return s, writer
}

func TestNewSynchronizer_Validation(t *testing.T) {
	t.Parallel()
	log := zap.NewNop().Sugar()

	_, err := NewSynchronizer(newFakeLedger(0), newRecordingWriter(), 0, log)
	require.EqualError(t, err, "invalid window size: must be greater than 0")

	_, err = NewSynchronizer(nil, newRecordingWriter(), 32, log)
	require.Error(t, err)

	_, err = NewSynchronizer(newFakeLedger(0), nil, 32, log)
	require.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(1000)
	s, writer := newTestSynchronizer(t, ledger, 32)

	cursor, update, err := s.Bootstrap(t.Context())
	require.NoError(t, err)
	require.Equal(t, stateroot.Cursor{LastFinalized: 1000}, cursor)
	require.True(t, update.Bootstrap)
	require.Equal(t, cursor, update.Current)
	require.Equal(t, seq(969, 1000), stateroot.Numbers(update.Added))
	require.Empty(t, update.Evicted)

	calls := writer.takeCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "publish", calls[0].op)
	require.Equal(t, seq(969, 1000), calls[0].numbers)
	require.Equal(t, rootFor(969), writer.roots[969])
}

func TestBootstrap_ShortChain(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(5)
	s, writer := newTestSynchronizer(t, ledger, 32)

	cursor, _, err := s.Bootstrap(t.Context())
	require.NoError(t, err)
	require.Equal(t, uint64(5), cursor.LastFinalized)
	require.Len(t, writer.roots, 6)
}

func TestBootstrap_Idempotent(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(1000)
	store := memory.New()
	s, err := NewSynchronizer(ledger, store, 32, zap.NewNop().Sugar())
	require.NoError(t, err)

	first, _, err := s.Bootstrap(t.Context())
	require.NoError(t, err)
	before := store.Snapshot()

	second, _, err := s.Bootstrap(t.Context())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, before, store.Snapshot())
	require.Equal(t, 32, store.Len())
}

func TestBootstrap_Failures(t *testing.T) {
	t.Parallel()

	t.Run("finalized unavailable", func(t *testing.T) {
		t.Parallel()
		ledger := newFakeLedger(1000)
		ledger.finalizedErr = stateroot.ErrSourceUnavailable
		s, writer := newTestSynchronizer(t, ledger, 32)

		_, _, err := s.Bootstrap(t.Context())
		require.ErrorIs(t, err, stateroot.ErrSourceUnavailable)
		var se *StageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, StageFinalized, se.Stage)
		require.Empty(t, writer.takeCalls())
	})

	t.Run("fetch fails", func(t *testing.T) {
		t.Parallel()
		ledger := newFakeLedger(1000)
		ledger.rootErrs[980] = stateroot.ErrBlockNotFound
		s, writer := newTestSynchronizer(t, ledger, 32)

		_, _, err := s.Bootstrap(t.Context())
		require.ErrorIs(t, err, stateroot.ErrBlockNotFound)
		var se *StageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, StageFetch, se.Stage)
		require.Empty(t, writer.takeCalls())
	})

	t.Run("publish rejected", func(t *testing.T) {
		t.Parallel()
		ledger := newFakeLedger(1000)
		s, writer := newTestSynchronizer(t, ledger, 32)
		writer.publishErr = stateroot.ErrWriteRejected

		_, _, err := s.Bootstrap(t.Context())
		require.ErrorIs(t, err, stateroot.ErrWriteRejected)
		var se *StageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, StagePublish, se.Stage)
	})
}

func TestAdvance_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fb          uint64
		wantAdded   []uint64
		wantEvicted []uint64
		wantCalls   []string
	}{
		{
			name:      "no new finality",
			fb:        1000,
			wantCalls: nil,
		},
		{
			name:        "small gap",
			fb:          1003,
			wantAdded:   seq(1001, 1003),
			wantEvicted: seq(969, 971),
			wantCalls:   []string{"publish", "purge"},
		},
		{
			name:        "gap larger than window",
			fb:          1050,
			wantAdded:   seq(1019, 1050),
			wantEvicted: seq(969, 1000),
			wantCalls:   []string{"publish", "purge"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ledger := newFakeLedger(1000)
			s, writer := newTestSynchronizer(t, ledger, 32)
			cursor, _, err := s.Bootstrap(t.Context())
			require.NoError(t, err)
			writer.takeCalls()
			ledger.resetFetched()

			ledger.setFinalized(tt.fb)
			next, update, err := s.Advance(t.Context(), cursor)
			require.NoError(t, err)
			require.Equal(t, tt.fb, next.LastFinalized)
			require.Equal(t, cursor, update.Previous)
			require.Equal(t, next, update.Current)
			require.Equal(t, tt.wantAdded, nilIfEmpty(stateroot.Numbers(update.Added)))
			require.Equal(t, tt.wantEvicted, nilIfEmpty(update.Evicted))

			var ops []string
			for _, c := range writer.takeCalls() {
				ops = append(ops, c.op)
			}
			require.Equal(t, tt.wantCalls, ops)

			// Only roots entering the window are fetched.
			require.Equal(t, tt.wantAdded, nilIfEmpty(ledger.fetched))

			window := InitialRange(tt.fb, 32)
			require.Len(t, writer.roots, 32)
			for n := range writer.roots {
				require.True(t, window.Contains(n), "block %d outside %s", n, window)
			}
		})
	}
}

func nilIfEmpty(s []uint64) []uint64 {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestAdvance_LargeGapFetchesExactlyWindow(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(100)
	s, writer := newTestSynchronizer(t, ledger, 16)
	cursor, _, err := s.Bootstrap(t.Context())
	require.NoError(t, err)
	ledger.resetFetched()

	ledger.setFinalized(1_000_000)
	_, update, err := s.Advance(t.Context(), cursor)
	require.NoError(t, err)
	require.Len(t, ledger.fetched, 16)
	require.Len(t, update.Added, 16)
	require.Equal(t, seq(85, 100), update.Evicted)
	require.Len(t, writer.roots, 16)
}

func TestAdvance_NoopIssuesNoWrites(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(1000)
	s, writer := newTestSynchronizer(t, ledger, 32)
	cursor := stateroot.Cursor{LastFinalized: 1000}

	for _, fb := range []uint64{1000, 999, 0} {
		ledger.setFinalized(fb)
		next, update, err := s.Advance(t.Context(), cursor)
		require.NoError(t, err)
		require.Equal(t, cursor, next)
		require.False(t, update.Changed())
	}
	require.Empty(t, writer.takeCalls())
	require.Empty(t, ledger.fetched)
}

func TestAdvance_ShortChainSkipsPurge(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(3)
	s, writer := newTestSynchronizer(t, ledger, 32)
	cursor, _, err := s.Bootstrap(t.Context())
	require.NoError(t, err)
	writer.takeCalls()

	ledger.setFinalized(10)
	_, update, err := s.Advance(t.Context(), cursor)
	require.NoError(t, err)
	require.Empty(t, update.Evicted)

	calls := writer.takeCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "publish", calls[0].op)
	require.Equal(t, seq(4, 10), calls[0].numbers)
}

func TestAdvance_PublishBeforePurge(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(1000)
	s, writer := newTestSynchronizer(t, ledger, 32)
	cursor := stateroot.Cursor{LastFinalized: 1000}

	for _, fb := range []uint64{1001, 1005, 1100, 1101} {
		ledger.setFinalized(fb)
		next, _, err := s.Advance(t.Context(), cursor)
		require.NoError(t, err)
		cursor = next

		calls := writer.takeCalls()
		require.Len(t, calls, 2)
		require.Equal(t, "publish", calls[0].op)
		require.Equal(t, "purge", calls[1].op)
		require.True(t, slices.IsSorted(calls[0].numbers))
	}
}

func TestAdvance_PublishFailureKeepsCursor(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(1003)
	s, writer := newTestSynchronizer(t, ledger, 32)
	writer.publishErr = fmt.Errorf("%w: reverted", stateroot.ErrWriteRejected)
	cursor := stateroot.Cursor{LastFinalized: 1000}

	next, update, err := s.Advance(t.Context(), cursor)
	require.ErrorIs(t, err, stateroot.ErrWriteRejected)
	require.Equal(t, cursor, next)
	require.Equal(t, cursor, update.Current)
	require.False(t, update.Changed())

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StagePublish, se.Stage)

	calls := writer.takeCalls()
	require.Len(t, calls, 1, "purge must not follow a failed publish")
	require.Equal(t, "publish", calls[0].op)
}

func TestAdvance_PurgeFailureRederivesSameRanges(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(1003)
	s, writer := newTestSynchronizer(t, ledger, 32)
	writer.purgeErr = stateroot.ErrSourceUnavailable
	cursor := stateroot.Cursor{LastFinalized: 1000}

	next, _, err := s.Advance(t.Context(), cursor)
	require.ErrorIs(t, err, stateroot.ErrSourceUnavailable)
	require.Equal(t, cursor, next)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StagePurge, se.Stage)
	failed := writer.takeCalls()

	writer.purgeErr = nil
	next, update, err := s.Advance(t.Context(), cursor)
	require.NoError(t, err)
	require.Equal(t, uint64(1003), next.LastFinalized)
	require.Equal(t, failed, writer.takeCalls())
	require.Equal(t, seq(969, 971), update.Evicted)
}

func TestAdvance_FetchFailureAbortsBeforeWrites(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(1003)
	ledger.rootErrs[1002] = fmt.Errorf("%w: node lagging", stateroot.ErrBlockNotFound)
	s, writer := newTestSynchronizer(t, ledger, 32)
	cursor := stateroot.Cursor{LastFinalized: 1000}

	next, _, err := s.Advance(t.Context(), cursor)
	require.True(t, errors.Is(err, stateroot.ErrBlockNotFound))
	require.Equal(t, cursor, next)
	require.Empty(t, writer.takeCalls())
	require.Equal(t, []uint64{1001, 1002}, ledger.fetched)
}

func TestAdvance_MemoryStoreMatchesWindow(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(50)
	store := memory.New(memory.WithCapacity(64))
	s, err := NewSynchronizer(ledger, store, 32, zap.NewNop().Sugar())
	require.NoError(t, err)

	cursor, _, err := s.Bootstrap(t.Context())
	require.NoError(t, err)

	for _, fb := range []uint64{52, 60, 60, 95, 200, 201} {
		ledger.setFinalized(fb)
		cursor, _, err = s.Advance(t.Context(), cursor)
		require.NoError(t, err)
		require.Equal(t, InitialRange(fb, 32).Numbers(), store.Numbers())
		root, ok := store.Root(fb)
		require.True(t, ok)
		require.Equal(t, rootFor(fb), root)
	}
}
