package checkpoint

// Checkpoint is one row of the checkpoints table. LastFinalized is the cursor
// of the last completed cycle and Target the block the latest started cycle
// moves the window to. Timestamp is the write time in Unix nanoseconds and
// lets ReplacingMergeTree keep the newest row, since a cycle writes twice.
type Checkpoint struct {
	ChainID       uint64 `json:"chain_id"`
	LastFinalized uint64 `json:"last_finalized_block"`
	Target        uint64 `json:"target_block"`
	Timestamp     int64  `json:"timestamp"`
}
