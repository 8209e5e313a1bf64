package checkpointer

import (
	"time"

	"github.com/ava-labs/stateroot-syncer/pkg/retry"
)

// Config holds the configuration for checkpoint writes.
type Config struct {
	WriteTimeout time.Duration // Timeout for each checkpoint write operation
	MaxRetries   int           // Maximum number of retry attempts for failed writes
	RetryBackoff time.Duration // Delay before the first retry, doubled up to four times that
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 300 * time.Millisecond,
	}
}

func (c Config) retryConfig() retry.Config {
	return retry.Config{
		MaxRetries:      c.MaxRetries,
		InitialInterval: c.RetryBackoff,
		MaxInterval:     4 * c.RetryBackoff,
		CallTimeout:     c.WriteTimeout,
	}
}
