// Package messages defines the window change events produced to Kafka.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// EventType tags a window event.
type EventType string

const (
	// TypePublished means the root for BlockNumber is now held by the oracle.
	TypePublished EventType = "state_root_published"
	// TypePurged means the root for BlockNumber was removed from the oracle.
	TypePurged EventType = "state_root_purged"
)

// Version of the event schema.
const Version = 1

// WindowEvent is one change to the oracle window. Events of a cycle share the
// cycle's Sequence, which equals the cursor the cycle advanced to. Consumers
// apply events in Sequence order and may ignore anything at or below the last
// Sequence they applied.
type WindowEvent struct {
	Type        EventType    `json:"type"`
	Version     int          `json:"version"`
	EVMChainID  uint64       `json:"evmChainId"`
	Sequence    uint64       `json:"sequence"`
	BlockNumber uint64       `json:"blockNumber"`
	StateRoot   *common.Hash `json:"stateRoot,omitempty"`
	Bootstrap   bool         `json:"bootstrap,omitempty"`
	EmittedAt   int64        `json:"emittedAt"`
}

// Published creates a TypePublished event.
func Published(chainID, sequence, number uint64, root common.Hash, bootstrap bool, emittedAt int64) WindowEvent {
	return WindowEvent{
		Type:        TypePublished,
		Version:     Version,
		EVMChainID:  chainID,
		Sequence:    sequence,
		BlockNumber: number,
		StateRoot:   &root,
		Bootstrap:   bootstrap,
		EmittedAt:   emittedAt,
	}
}

// Purged creates a TypePurged event.
func Purged(chainID, sequence, number uint64, emittedAt int64) WindowEvent {
	return WindowEvent{
		Type:        TypePurged,
		Version:     Version,
		EVMChainID:  chainID,
		Sequence:    sequence,
		BlockNumber: number,
		EmittedAt:   emittedAt,
	}
}

// Validate checks the tag and tag-dependent fields.
func (e WindowEvent) Validate() error {
	switch e.Type {
	case TypePublished:
		if e.StateRoot == nil {
			return errors.New("published event without state root")
		}
	case TypePurged:
		if e.StateRoot != nil {
			return errors.New("purged event must not carry a state root")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Key partitions events by chain so each chain's events stay ordered.
func (e WindowEvent) Key() []byte {
	return []byte(strconv.FormatUint(e.EVMChainID, 10))
}

// Marshal validates and encodes the event as JSON.
func (e WindowEvent) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Unmarshal decodes and validates a JSON event.
func Unmarshal(data []byte) (WindowEvent, error) {
	var e WindowEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return WindowEvent{}, fmt.Errorf("decode window event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return WindowEvent{}, err
	}
	return e, nil
}
