// Package ledger defines read access to the external ledger whose finalized
// state roots are mirrored into the oracle store.
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Reader answers the two questions the synchronizer asks the ledger.
type Reader interface {
	// CurrentFinalized returns the number of the latest finalized block.
	// Fails with stateroot.ErrSourceUnavailable when the ledger cannot be reached
	// or returns malformed data.
	CurrentFinalized(ctx context.Context) (uint64, error)

	// RootOf returns the state root of block n. Fails with stateroot.ErrBlockNotFound
	// when n is unknown or not yet finalized, and with stateroot.ErrSourceUnavailable
	// on transport errors.
	RootOf(ctx context.Context, n uint64) (common.Hash, error)
}
