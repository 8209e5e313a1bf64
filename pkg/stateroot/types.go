package stateroot

import (
	"github.com/ethereum/go-ethereum/common"
)

// Entry is a finalized block number paired with its state root.
type Entry struct {
	Number uint64
	Root   common.Hash
}

// Cursor is the only state carried between synchronization cycles.
type Cursor struct {
	LastFinalized uint64
}

// WindowUpdate summarizes one successful bootstrap or advance.
type WindowUpdate struct {
	Previous  Cursor
	Current   Cursor
	Bootstrap bool
	Added     []Entry
	Evicted   []uint64
}

// Changed reports whether the update published or purged anything.
func (u WindowUpdate) Changed() bool {
	return len(u.Added) > 0 || len(u.Evicted) > 0
}

// Numbers returns the block numbers of entries in order.
func Numbers(entries []Entry) []uint64 {
	out := make([]uint64, len(entries))
	for i, e := range entries {
		out[i] = e.Number
	}
	return out
}
