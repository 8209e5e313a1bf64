// Package evm reads finalized state roots from an EVM JSON-RPC endpoint.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ava-labs/stateroot-syncer/pkg/ledger"
	"github.com/ava-labs/stateroot-syncer/pkg/metrics"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

const (
	methodFinalized = "eth_getBlockByNumber_finalized"
	methodHeader    = "eth_getBlockByNumber"
)

// HeaderSource is the subset of ethclient.Client used by Client.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Client implements ledger.Reader on top of go-ethereum's ethclient.
type Client struct {
	headers HeaderSource
	closer  func()
	metrics *metrics.Metrics // nil if metrics disabled

	mu        sync.Mutex
	finalized uint64 // highest finalized block observed so far
}

var _ ledger.Reader = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Dial connects to the JSON-RPC endpoint at url.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	c := New(ec, opts...)
	c.closer = ec.Close
	return c, nil
}

// New creates a Client over an existing header source.
func New(headers HeaderSource, opts ...Option) *Client {
	c := &Client{headers: headers}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentFinalized returns the number of the block tagged "finalized".
func (c *Client) CurrentFinalized(ctx context.Context) (uint64, error) {
	h, err := c.header(ctx, methodFinalized, big.NewInt(rpc.FinalizedBlockNumber.Int64()))
	if err != nil {
		if errors.Is(err, stateroot.ErrBlockNotFound) {
			// The node has no finalized block yet; treat it as not ready.
			return 0, fmt.Errorf("%w: no finalized block reported", stateroot.ErrSourceUnavailable)
		}
		return 0, fmt.Errorf("get finalized block: %w", err)
	}
	if h.Number == nil || !h.Number.IsUint64() {
		return 0, fmt.Errorf("%w: malformed finalized block number", stateroot.ErrSourceUnavailable)
	}
	fb := h.Number.Uint64()
	c.observe(fb)
	return fb, nil
}

// RootOf returns the state root of block n, which must already be finalized.
func (c *Client) RootOf(ctx context.Context, n uint64) (common.Hash, error) {
	if n > c.lastFinalized() {
		fb, err := c.CurrentFinalized(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		if n > fb {
			return common.Hash{}, fmt.Errorf("block %d above finalized %d: %w", n, fb, stateroot.ErrBlockNotFound)
		}
	}

	h, err := c.header(ctx, methodHeader, new(big.Int).SetUint64(n))
	if err != nil {
		return common.Hash{}, fmt.Errorf("get block %d: %w", n, err)
	}
	if h.Number == nil || h.Number.Uint64() != n {
		return common.Hash{}, fmt.Errorf("%w: header for block %d has number %v", stateroot.ErrSourceUnavailable, n, h.Number)
	}
	return h.Root, nil
}

// Close closes the underlying RPC client if Client dialed it.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) header(ctx context.Context, method string, number *big.Int) (*types.Header, error) {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.IncRPCInFlight()
		defer c.metrics.DecRPCInFlight()
	}

	h, err := c.headers.HeaderByNumber(ctx, number)

	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	}

	switch {
	case errors.Is(err, ethereum.NotFound):
		return nil, fmt.Errorf("%w: %w", stateroot.ErrBlockNotFound, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", stateroot.ErrSourceUnavailable, err)
	case h == nil:
		return nil, stateroot.ErrBlockNotFound
	}
	return h, nil
}

func (c *Client) observe(fb uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fb > c.finalized {
		c.finalized = fb
	}
}

func (c *Client) lastFinalized() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized
}
