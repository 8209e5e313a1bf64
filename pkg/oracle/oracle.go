// Package oracle defines the write side of the state root mirror: a remote,
// capacity-bounded store of block number to state root.
package oracle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

// Writer publishes and purges state roots in the oracle store.
//
// Publish upserts a batch; republishing an entry with the same contents is a
// no-op. Purge deletes a batch; purging numbers that are absent succeeds.
// Both fail with stateroot.ErrWriteRejected (possibly marked transient) or
// stateroot.ErrSourceUnavailable.
type Writer interface {
	Publish(ctx context.Context, entries []stateroot.Entry) error
	Purge(ctx context.Context, numbers []uint64) error
}

// ValidateEntries rejects batches the oracle could never accept: zero roots
// and duplicate block numbers.
func ValidateEntries(entries []stateroot.Entry) error {
	seen := make(map[uint64]struct{}, len(entries))
	for _, e := range entries {
		if e.Root == (common.Hash{}) {
			return fmt.Errorf("%w: empty root for block %d", stateroot.ErrWriteRejected, e.Number)
		}
		if _, ok := seen[e.Number]; ok {
			return fmt.Errorf("%w: duplicate block %d", stateroot.ErrWriteRejected, e.Number)
		}
		seen[e.Number] = struct{}{}
	}
	return nil
}
