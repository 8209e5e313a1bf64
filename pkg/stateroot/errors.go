package stateroot

import (
	"errors"
)

var (
	// ErrSourceUnavailable is returned when the ledger or the oracle store cannot be
	// reached, times out, or answers with malformed data.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrBlockNotFound is returned when a block is unknown or not yet finalized.
	ErrBlockNotFound = errors.New("block not found")
	// ErrWriteRejected is returned when the oracle store rejects a batch.
	ErrWriteRejected = errors.New("write rejected")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as safe to retry. A nil error stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err, or any error it wraps, was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Kind returns a short label for the error kind, used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrBlockNotFound):
		return "block_not_found"
	case errors.Is(err, ErrWriteRejected):
		return "write_rejected"
	default:
		return "unknown"
	}
}
