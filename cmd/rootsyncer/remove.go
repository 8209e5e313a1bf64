package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/stateroot-syncer/pkg/clickhouse"
	"github.com/ava-labs/stateroot-syncer/pkg/data/clickhouse/checkpoint"
	"github.com/ava-labs/stateroot-syncer/pkg/utils"
)

func remove(c *cli.Context) error {
	ctx := context.Background()
	sugar, err := utils.NewSugaredLogger(true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	evmChainID := c.Uint64("evm-chain-id")
	if evmChainID == 0 {
		return errors.New("evm chain ID is required")
	}

	chCfg, err := buildClickHouseConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load ClickHouse config: %w", err)
	}
	checkpointTableName := c.String("checkpoint-table-name")

	chClient, err := clickhouse.New(ctx, chCfg, sugar)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	repo, err := checkpoint.NewRepository(chClient, chCfg.Cluster, chCfg.Database, checkpointTableName)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint repository: %w", err)
	}

	if err := repo.Delete(ctx, evmChainID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	sugar.Infof("checkpoint successfully removed for chain ID %d, the next run will bootstrap the window", evmChainID)
	return nil
}
