package memory

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

func entry(n uint64) stateroot.Entry {
	return stateroot.Entry{Number: n, Root: common.BigToHash(new(big.Int).SetUint64(n + 1000))}
}

func TestStore_PublishAndPurge(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Publish(t.Context(), []stateroot.Entry{entry(1), entry(2), entry(3)}))
	require.Equal(t, 3, s.Len())
	require.Equal(t, []uint64{1, 2, 3}, s.Numbers())

	root, ok := s.Root(2)
	require.True(t, ok)
	require.Equal(t, entry(2).Root, root)

	require.NoError(t, s.Purge(t.Context(), []uint64{1, 2}))
	require.Equal(t, []uint64{3}, s.Numbers())

	publish, purge := s.Calls()
	require.Equal(t, 1, publish)
	require.Equal(t, 1, purge)
}

func TestStore_PublishIdempotent(t *testing.T) {
	t.Parallel()

	s := New()
	batch := []stateroot.Entry{entry(10), entry(11)}
	require.NoError(t, s.Publish(t.Context(), batch))
	before := s.Snapshot()

	require.NoError(t, s.Publish(t.Context(), batch))
	require.Equal(t, before, s.Snapshot())
}

func TestStore_PurgeIdempotent(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Publish(t.Context(), []stateroot.Entry{entry(10), entry(11)}))

	require.NoError(t, s.Purge(t.Context(), []uint64{10, 99}))
	after := s.Snapshot()
	require.NoError(t, s.Purge(t.Context(), []uint64{10, 99}))
	require.Equal(t, after, s.Snapshot())
	require.Equal(t, []uint64{11}, s.Numbers())
}

func TestStore_Capacity(t *testing.T) {
	t.Parallel()

	s := New(WithCapacity(2))
	require.NoError(t, s.Publish(t.Context(), []stateroot.Entry{entry(1), entry(2)}))

	// Overwriting held numbers does not grow the store
	require.NoError(t, s.Publish(t.Context(), []stateroot.Entry{entry(2)}))

	err := s.Publish(t.Context(), []stateroot.Entry{entry(3)})
	require.ErrorIs(t, err, stateroot.ErrWriteRejected)
	require.False(t, stateroot.IsTransient(err))
	require.Equal(t, []uint64{1, 2}, s.Numbers())

	require.NoError(t, s.Purge(t.Context(), []uint64{1}))
	require.NoError(t, s.Publish(t.Context(), []stateroot.Entry{entry(3)}))
}

func TestStore_RejectsInvalidBatch(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.Publish(t.Context(), []stateroot.Entry{{Number: 5}})
	require.ErrorIs(t, err, stateroot.ErrWriteRejected)

	err = s.Publish(t.Context(), []stateroot.Entry{entry(5), entry(5)})
	require.ErrorIs(t, err, stateroot.ErrWriteRejected)
	require.Zero(t, s.Len())
}

func TestStore_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	s := New()
	require.ErrorIs(t, s.Publish(ctx, []stateroot.Entry{entry(1)}), context.Canceled)
	require.ErrorIs(t, s.Purge(ctx, []uint64{1}), context.Canceled)
	require.Zero(t, s.Len())
}

func TestStore_DryRunLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	s := New(WithLogger(zap.New(core).Sugar()))

	require.NoError(t, s.Publish(t.Context(), []stateroot.Entry{entry(1), entry(2)}))
	require.NoError(t, s.Purge(t.Context(), []uint64{1}))

	require.Equal(t, 1, logs.FilterMessage("published state roots").Len())
	require.Equal(t, 1, logs.FilterMessage("purged state roots").Len())
}
