// Package memory provides an in-process oracle store. It backs dry runs and
// serves as the reference Writer in tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/oracle"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

// Store is a map-backed oracle.Writer. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	roots    map[uint64]common.Hash
	capacity int // 0 means unbounded
	log      *zap.SugaredLogger

	publishCalls int
	purgeCalls   int
}

var _ oracle.Writer = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithCapacity bounds the number of roots held. A publish that would leave
// more than capacity roots is rejected.
func WithCapacity(capacity int) Option {
	return func(s *Store) {
		s.capacity = capacity
	}
}

// WithLogger logs every write at info level, which is what dry-run mode shows.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{roots: make(map[uint64]common.Hash)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish upserts entries.
func (s *Store) Publish(ctx context.Context, entries []stateroot.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := oracle.ValidateEntries(entries); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishCalls++

	if s.capacity > 0 {
		size := len(s.roots)
		for _, e := range entries {
			if _, ok := s.roots[e.Number]; !ok {
				size++
			}
		}
		if size > s.capacity {
			return fmt.Errorf("%w: %d roots would exceed capacity %d", stateroot.ErrWriteRejected, size, s.capacity)
		}
	}

	for _, e := range entries {
		s.roots[e.Number] = e.Root
	}
	if s.log != nil && len(entries) > 0 {
		s.log.Infow("published state roots",
			"count", len(entries),
			"first", entries[0].Number,
			"last", entries[len(entries)-1].Number,
		)
	}
	return nil
}

// Purge deletes numbers. Absent numbers are ignored.
func (s *Store) Purge(ctx context.Context, numbers []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeCalls++

	for _, n := range numbers {
		delete(s.roots, n)
	}
	if s.log != nil && len(numbers) > 0 {
		s.log.Infow("purged state roots",
			"count", len(numbers),
			"first", numbers[0],
			"last", numbers[len(numbers)-1],
		)
	}
	return nil
}

// Root returns the root held for block n.
func (s *Store) Root(n uint64) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.roots[n]
	return root, ok
}

// Len returns the number of roots held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roots)
}

// Numbers returns the held block numbers in ascending order.
func (s *Store) Numbers() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.roots))
}

// Snapshot returns a copy of the held roots.
func (s *Store) Snapshot() map[uint64]common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.roots)
}

// Calls returns how many Publish and Purge calls reached the store.
func (s *Store) Calls() (publish, purge int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publishCalls, s.purgeCalls
}
