package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/stateroot-syncer/pkg/checkpointer"
	"github.com/ava-labs/stateroot-syncer/pkg/clickhouse"
)

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/write-checkpoint.sql
var writeCheckpointQuery string

//go:embed queries/read-checkpoint.sql
var readCheckpointQuery string

//go:embed queries/delete-checkpoints.sql
var deleteCheckpointsQuery string

// Repository persists window cursors in ClickHouse.
type Repository struct {
	client    clickhouse.Client
	cluster   string
	database  string
	tableName string
	now       func() time.Time
}

var _ checkpointer.Checkpointer = (*Repository)(nil)

// NewRepository creates a Repository. An empty cluster creates a plain
// ReplacingMergeTree table; otherwise the table is replicated ON CLUSTER.
func NewRepository(client clickhouse.Client, cluster, database, tableName string) (*Repository, error) {
	if database == "" || tableName == "" {
		return nil, errors.New("checkpoint database and table name are required")
	}
	return &Repository{
		client:    client,
		cluster:   cluster,
		database:  database,
		tableName: tableName,
		now:       time.Now,
	}, nil
}

func (r *Repository) onCluster() string {
	if r.cluster == "" {
		return ""
	}
	return fmt.Sprintf(" ON CLUSTER '%s'", r.cluster)
}

func (r *Repository) engine() string {
	if r.cluster == "" {
		return "ReplacingMergeTree(timestamp)"
	}
	return "ReplicatedReplacingMergeTree(timestamp)"
}

// Initialize ensures the checkpoints table exists.
// Schema:
//   - chain_id: UInt64 (sorting key)
//   - last_finalized_block: UInt64
//   - target_block: UInt64
//   - timestamp: Int64, Unix nanoseconds (ReplacingMergeTree version column)
func (r *Repository) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(createTableQuery, r.database, r.tableName, r.onCluster(), r.engine())
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// Write persists a checkpoint stamped with the current Unix time in nanoseconds.
func (r *Repository) Write(ctx context.Context, evmChainID uint64, state checkpointer.State) error {
	cp := Checkpoint{
		ChainID:       evmChainID,
		LastFinalized: state.LastFinalized,
		Target:        state.Target,
		Timestamp:     r.now().UnixNano(),
	}
	query := fmt.Sprintf(writeCheckpointQuery, r.database, r.tableName)
	if err := r.client.Conn().Exec(ctx, query, cp.ChainID, cp.LastFinalized, cp.Target, cp.Timestamp); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Read retrieves the latest checkpoint for the given EVM chain ID.
func (r *Repository) Read(ctx context.Context, evmChainID uint64) (checkpointer.State, bool, error) {
	var cp Checkpoint
	query := fmt.Sprintf(readCheckpointQuery, r.database, r.tableName)
	err := r.client.Conn().
		QueryRow(ctx, query, evmChainID).
		Scan(&cp.ChainID, &cp.LastFinalized, &cp.Target, &cp.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkpointer.State{}, false, nil
		}
		return checkpointer.State{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return checkpointer.State{LastFinalized: cp.LastFinalized, Target: cp.Target}, true, nil
}

// Delete removes every checkpoint row for the chain.
func (r *Repository) Delete(ctx context.Context, evmChainID uint64) error {
	query := fmt.Sprintf(deleteCheckpointsQuery, r.database, r.tableName, r.onCluster())
	if err := r.client.Conn().Exec(ctx, query, evmChainID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}
