package checkpointer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/stateroot-syncer/pkg/retry"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

// State is what a checkpoint records for one chain.
//
// LastFinalized is the cursor of the last cycle known to have completed. Target
// is the finalized block the most recently started cycle moves the window to,
// and is written before that cycle touches the oracle. The two are equal once
// the cycle completed; a bootstrap in flight is recorded with both set to its
// target.
type State struct {
	LastFinalized uint64
	Target        uint64
}

// Settled reports whether no cycle past LastFinalized was started.
func (s State) Settled() bool {
	return s.Target == s.LastFinalized
}

// Checkpointer abstracts cursor persistence across different data stores. A checkpoint lets a
// restart finish the cycle that was in flight and resume advancing the window instead of
// bootstrapping it again.
type Checkpointer interface {
	// Initialize ensures the underlying storage is ready (creates tables, schemas, etc.). This
	// should be idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Write atomically persists a checkpoint. The EVM chain ID should be included in the key or
	// row in the data store.
	Write(ctx context.Context, evmChainID uint64, state State) error

	// Read retrieves the latest checkpoint for a chain. If no checkpoint exists, exists will be
	// false and state will be zero.
	Read(ctx context.Context, evmChainID uint64) (state State, exists bool, err error)

	// Delete removes every checkpoint for a chain, forcing the next start to bootstrap.
	Delete(ctx context.Context, evmChainID uint64) error
}

// WriteWithRetry persists state, retrying failed writes up to cfg.MaxRetries times.
//
// Returns ctx.Err() if the context is cancelled while retrying, or the last write error once
// all retries are exhausted.
func WriteWithRetry(
	ctx context.Context,
	checkpointer Checkpointer,
	cfg Config,
	evmChainID uint64,
	state State,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := retry.Do(ctx, cfg.retryConfig(), func(ctx context.Context) error {
		err := checkpointer.Write(ctx, evmChainID, state)
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		// Every store failure is worth another attempt.
		return fmt.Errorf("%w: %w", stateroot.ErrSourceUnavailable, err)
	}, nil)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("failed to write checkpoint (last finalized: %d, target: %d) after %d attempts: %w",
		state.LastFinalized, state.Target, cfg.MaxRetries+1, err)
}
