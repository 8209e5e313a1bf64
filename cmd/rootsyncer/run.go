package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/stateroot-syncer/pkg/checkpointer"
	"github.com/ava-labs/stateroot-syncer/pkg/clickhouse"
	"github.com/ava-labs/stateroot-syncer/pkg/data/clickhouse/checkpoint"
	"github.com/ava-labs/stateroot-syncer/pkg/kafka"
	"github.com/ava-labs/stateroot-syncer/pkg/ledger"
	ledgerevm "github.com/ava-labs/stateroot-syncer/pkg/ledger/evm"
	"github.com/ava-labs/stateroot-syncer/pkg/metrics"
	"github.com/ava-labs/stateroot-syncer/pkg/oracle"
	oracleevm "github.com/ava-labs/stateroot-syncer/pkg/oracle/evm"
	"github.com/ava-labs/stateroot-syncer/pkg/oracle/memory"
	"github.com/ava-labs/stateroot-syncer/pkg/utils"
	"github.com/ava-labs/stateroot-syncer/pkg/windowsync"
)

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose, "evmChainID", cfg.EVMChainID)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"rpcURL", cfg.RPCURL,
		"windowSize", cfg.WindowSize,
		"pollInterval", cfg.PollInterval,
		"cycleTimeout", cfg.CycleTimeout,
		"callTimeout", cfg.Retry.CallTimeout,
		"maxRetries", cfg.Retry.MaxRetries,
		"oracleType", cfg.OracleType,
		"oracleRPCURL", cfg.OracleRPCURL,
		"oracleAddress", cfg.OracleAddress,
		"oracleChainID", cfg.OracleChainID,
		"receiptTimeout", cfg.ReceiptTimeout,
		"checkpointEnabled", cfg.CheckpointEnabled,
		"checkpointTableName", cfg.CheckpointTableName,
		"clickhouseCluster", cfg.ClickHouse.Cluster,
		"clickhouseDatabase", cfg.ClickHouse.Database,
		"kafkaEnabled", cfg.KafkaEnabled,
		"kafkaTopic", cfg.Kafka.Topic,
		"lagWatchdogInterval", cfg.LagWatchdogInterval,
		"lagWatchdogMaxLag", cfg.LagWatchdogMaxLag,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		EVMChainID:    cfg.EVMChainID,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgerClient, err := ledgerevm.Dial(ctx, cfg.RPCURL, ledgerevm.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to dial ledger rpc: %w", err)
	}
	defer ledgerClient.Close()
	reader := ledger.NewRetrying(ledgerClient, cfg.Retry, sugar, m)

	writer, closeWriter, err := newOracleWriter(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer closeWriter()

	syncer, err := windowsync.NewSynchronizer(reader, oracle.NewRetrying(writer, cfg.OracleRetryConfig(), sugar, m), cfg.WindowSize, sugar)
	if err != nil {
		return fmt.Errorf("failed to create synchronizer: %w", err)
	}

	opts := []windowsync.LoopOption{
		windowsync.WithMetrics(m),
		windowsync.WithCycleTimeout(cfg.CycleTimeout),
	}

	if cfg.CheckpointEnabled {
		chClient, err := clickhouse.New(ctx, cfg.ClickHouse, sugar)
		if err != nil {
			return fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		defer chClient.Close()

		sugar.Info("ClickHouse client created successfully")

		repo, err := checkpoint.NewRepository(chClient, cfg.ClickHouse.Cluster, cfg.ClickHouse.Database, cfg.CheckpointTableName)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint repository: %w", err)
		}
		if err := repo.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize checkpoint table: %w", err)
		}
		opts = append(opts, windowsync.WithCheckpointer(repo, checkpointer.DefaultConfig(), cfg.EVMChainID))
	}

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer, err = newKafkaProducer(ctx, cfg, sugar, m)
		if err != nil {
			return err
		}
		defer producer.Close(cfg.Kafka.FlushTimeout)
		opts = append(opts, windowsync.WithNotifier(
			kafka.NewWindowNotifier(producer, cfg.Kafka.Topic, cfg.EVMChainID, sugar, m),
		))
	}

	loop, err := windowsync.NewLoop(syncer, cfg.PollInterval, sugar, opts...)
	if err != nil {
		return fmt.Errorf("failed to create sync loop: %w", err)
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, metrics.WithHealthCheck(loop.Health))
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		windowsync.StartLagWatchdog(gctx, sugar, reader, loop, cfg.LagWatchdogInterval, cfg.LagWatchdogMaxLag, m)
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	if producer != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case err := <-producer.Errors():
				return err
			}
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
	}

	// Gracefully shutdown metrics server
	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}

	sugar.Info("shutdown complete")
	return err
}

// newOracleWriter returns the configured oracle and a function releasing it.
func newOracleWriter(ctx context.Context, cfg *Config, sugar *zap.SugaredLogger) (oracle.Writer, func(), error) {
	switch cfg.OracleType {
	case oracleTypeEVM:
		w, err := oracleevm.Dial(ctx, cfg.OracleConfig(), sugar)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create registry writer: %w", err)
		}
		sugar.Infow("writing state roots to registry",
			"address", cfg.OracleAddress,
			"from", w.From().Hex(),
		)
		return w, w.Close, nil
	case oracleTypeMemory:
		sugar.Warn("dry run: state roots are kept in memory and never leave this process")
		store := memory.New(
			memory.WithCapacity(cfg.MemoryOracleCapacity()),
			memory.WithLogger(sugar),
		)
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("invalid oracle type: %s", cfg.OracleType)
	}
}

// newKafkaProducer makes sure the event topic exists and creates the producer.
func newKafkaProducer(ctx context.Context, cfg *Config, sugar *zap.SugaredLogger, m *metrics.Metrics) (*kafka.Producer, error) {
	adminConfig, err := cfg.Kafka.AdminConfigMap()
	if err != nil {
		return nil, fmt.Errorf("failed to build kafka admin config: %w", err)
	}
	adminClient, err := confluentKafka.NewAdminClient(adminConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer adminClient.Close()

	if err := kafka.EnsureTopic(ctx, adminClient, cfg.Kafka.TopicConfig(), sugar); err != nil {
		return nil, fmt.Errorf("failed to ensure kafka topic exists: %w", err)
	}

	producerConfig, err := cfg.Kafka.ConfigMap()
	if err != nil {
		return nil, fmt.Errorf("failed to build kafka producer config: %w", err)
	}
	producer, err := kafka.NewProducer(ctx, producerConfig, sugar, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return producer, nil
}
