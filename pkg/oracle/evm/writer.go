// Package evm writes state roots to an on-chain registry contract.
package evm

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/oracle"
	"github.com/ava-labs/stateroot-syncer/pkg/retry"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

const (
	methodSubmit = "submitStateRoots"
	methodDelete = "deleteStateRoots"
	methodRootOf = "stateRootOf"
)

//go:embed registry.abi.json
var registryABIJSON string

// RegistryABI is the parsed ABI of the state root registry contract.
var RegistryABI = mustParseABI(registryABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse registry abi: %v", err))
	}
	return parsed
}

// Backend is what the Writer needs from a chain connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Config holds the registry connection settings.
type Config struct {
	RPCURL         string
	Address        common.Address
	PrivateKey     string // hex, with or without 0x
	ChainID        uint64
	ReceiptTimeout time.Duration
}

// AttemptConfig returns base with a call timeout that covers sending a
// transaction and waiting receiptTimeout for it to be mined. Retrying a write
// under a shorter timeout would resubmit transactions that are still pending.
func AttemptConfig(base retry.Config, receiptTimeout time.Duration) retry.Config {
	cfg := base
	cfg.CallTimeout = base.CallTimeout + receiptTimeout
	return cfg
}

// Writer is an oracle.Writer backed by the registry contract.
type Writer struct {
	contract       *bind.BoundContract
	backend        Backend
	signer         *bind.TransactOpts
	receiptTimeout time.Duration
	log            *zap.SugaredLogger
	closer         func()
}

var _ oracle.Writer = (*Writer)(nil)

// Dial connects to cfg.RPCURL and creates a Writer for the registry at cfg.Address.
func Dial(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Writer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse oracle private key: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial oracle rpc: %w", err)
	}
	w, err := New(client, cfg.Address, key, new(big.Int).SetUint64(cfg.ChainID), cfg.ReceiptTimeout, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	w.closer = client.Close
	return w, nil
}

// New creates a Writer over an existing backend.
func New(
	backend Backend,
	address common.Address,
	key *ecdsa.PrivateKey,
	chainID *big.Int,
	receiptTimeout time.Duration,
	log *zap.SugaredLogger,
) (*Writer, error) {
	if key == nil {
		return nil, errors.New("oracle private key is required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("invalid oracle chain id: must be greater than 0")
	}
	if receiptTimeout <= 0 {
		return nil, errors.New("invalid receipt timeout: must be greater than 0")
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	return &Writer{
		contract:       bind.NewBoundContract(address, RegistryABI, backend, backend, backend),
		backend:        backend,
		signer:         signer,
		receiptTimeout: receiptTimeout,
		log:            log,
	}, nil
}

// From returns the address that signs registry transactions.
func (w *Writer) From() common.Address {
	return w.signer.From
}

// Publish submits entries in a single submitStateRoots transaction.
func (w *Writer) Publish(ctx context.Context, entries []stateroot.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := oracle.ValidateEntries(entries); err != nil {
		return err
	}
	numbers := make([]uint64, len(entries))
	roots := make([][32]byte, len(entries))
	for i, e := range entries {
		numbers[i] = e.Number
		roots[i] = e.Root
	}
	return w.transact(ctx, methodSubmit, numbers, roots)
}

// Purge deletes numbers in a single deleteStateRoots transaction.
func (w *Writer) Purge(ctx context.Context, numbers []uint64) error {
	if len(numbers) == 0 {
		return nil
	}
	return w.transact(ctx, methodDelete, numbers)
}

// RootOf reads the root the registry holds for block n. A zero hash means absent.
func (w *Writer) RootOf(ctx context.Context, n uint64) (common.Hash, error) {
	var out []any
	if err := w.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodRootOf, n); err != nil {
		return common.Hash{}, classify(err)
	}
	if len(out) != 1 {
		return common.Hash{}, fmt.Errorf("%w: unexpected %s output", stateroot.ErrSourceUnavailable, methodRootOf)
	}
	root, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: unexpected %s output type %T", stateroot.ErrSourceUnavailable, methodRootOf, out[0])
	}
	return root, nil
}

// Close closes the RPC client if the Writer dialed it.
func (w *Writer) Close() {
	if w.closer != nil {
		w.closer()
	}
}

func (w *Writer) transact(ctx context.Context, method string, params ...any) error {
	opts := *w.signer
	opts.Context = ctx

	tx, err := w.contract.Transact(&opts, method, params...)
	if err != nil {
		return fmt.Errorf("%s: %w", method, classify(err))
	}

	waitCtx, cancel := context.WithTimeout(ctx, w.receiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, w.backend, tx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// Still pending or dropped. Resubmitting the same batch is harmless.
		return fmt.Errorf("%s: wait for tx %s: %w: %w", method, tx.Hash(), stateroot.ErrSourceUnavailable, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s: tx %s reverted in block %v: %w", method, tx.Hash(), receipt.BlockNumber, stateroot.ErrWriteRejected)
	}

	w.log.Debugw("registry transaction mined",
		"method", method,
		"tx", tx.Hash(),
		"block", receipt.BlockNumber,
		"gasUsed", receipt.GasUsed,
	)
	return nil
}

// transient node-side rejections that clear up on resubmission
var transientRejections = []string{
	"nonce too low",
	"replacement transaction underpriced",
	"transaction underpriced",
	"already known",
	"txpool is full",
}

// classify maps a contract call error onto the error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "execution reverted") || errors.Is(err, bind.ErrNoCode) {
		return fmt.Errorf("%w: %w", stateroot.ErrWriteRejected, err)
	}
	for _, s := range transientRejections {
		if strings.Contains(msg, s) {
			return stateroot.Transient(fmt.Errorf("%w: %w", stateroot.ErrWriteRejected, err))
		}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// The node answered but refused the transaction.
		return stateroot.Transient(fmt.Errorf("%w: %w", stateroot.ErrWriteRejected, err))
	}
	return fmt.Errorf("%w: %w", stateroot.ErrSourceUnavailable, err)
}
