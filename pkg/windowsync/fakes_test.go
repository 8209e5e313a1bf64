package windowsync

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/stateroot-syncer/pkg/checkpointer"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

func rootFor(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n + 1))
}

// fakeLedger serves deterministic roots for every block up to finalized.
type fakeLedger struct {
	mu           sync.Mutex
	finalized    uint64
	finalizedErr error
	rootErrs     map[uint64]error
	fetched      []uint64
}

func newFakeLedger(finalized uint64) *fakeLedger {
	return &fakeLedger{finalized: finalized, rootErrs: make(map[uint64]error)}
}

func (f *fakeLedger) setFinalized(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = n
}

func (f *fakeLedger) CurrentFinalized(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizedErr != nil {
		return 0, f.finalizedErr
	}
	return f.finalized, nil
}

func (f *fakeLedger) RootOf(_ context.Context, n uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, n)
	if err := f.rootErrs[n]; err != nil {
		return common.Hash{}, err
	}
	if n > f.finalized {
		return common.Hash{}, fmt.Errorf("%w: block %d", stateroot.ErrBlockNotFound, n)
	}
	return rootFor(n), nil
}

func (f *fakeLedger) resetFetched() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = nil
}

type writeCall struct {
	op      string
	numbers []uint64
}

// recordingWriter keeps the oracle contents and the order of calls.
type recordingWriter struct {
	mu         sync.Mutex
	roots      map[uint64]common.Hash
	calls      []writeCall
	publishErr error
	purgeErr   error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{roots: make(map[uint64]common.Hash)}
}

func (w *recordingWriter) Publish(_ context.Context, entries []stateroot.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, writeCall{op: "publish", numbers: stateroot.Numbers(entries)})
	if w.publishErr != nil {
		return w.publishErr
	}
	for _, e := range entries {
		w.roots[e.Number] = e.Root
	}
	return nil
}

func (w *recordingWriter) Purge(_ context.Context, numbers []uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, writeCall{op: "purge", numbers: numbers})
	if w.purgeErr != nil {
		return w.purgeErr
	}
	for _, n := range numbers {
		delete(w.roots, n)
	}
	return nil
}

func (w *recordingWriter) takeCalls() []writeCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	calls := w.calls
	w.calls = nil
	return calls
}

// heldNumbers returns the block numbers the oracle currently holds, ascending.
func (w *recordingWriter) heldNumbers() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint64, 0, len(w.roots))
	for n := range w.roots {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// memCheckpointer keeps one checkpoint per chain in memory. failWrite, when
// set, may reject a write.
type memCheckpointer struct {
	mu        sync.Mutex
	states    map[uint64]checkpointer.State
	writes    []checkpointer.State
	failWrite func(checkpointer.State) error
}

func newMemCheckpointer() *memCheckpointer {
	return &memCheckpointer{states: make(map[uint64]checkpointer.State)}
}

func (c *memCheckpointer) Initialize(context.Context) error { return nil }

func (c *memCheckpointer) Write(_ context.Context, evmChainID uint64, state checkpointer.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite != nil {
		if err := c.failWrite(state); err != nil {
			return err
		}
	}
	c.writes = append(c.writes, state)
	c.states[evmChainID] = state
	return nil
}

func (c *memCheckpointer) Read(_ context.Context, evmChainID uint64) (checkpointer.State, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[evmChainID]
	return state, ok, nil
}

func (c *memCheckpointer) Delete(_ context.Context, evmChainID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, evmChainID)
	return nil
}

func (c *memCheckpointer) stored(evmChainID uint64) checkpointer.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[evmChainID]
}
