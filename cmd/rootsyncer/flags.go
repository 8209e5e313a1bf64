package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// runFlags returns all CLI flags for the run command
func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.Uint64Flag{
			Name:     "evm-chain-id",
			Aliases:  []string{"C"},
			Usage:    "The EVM chain ID of the ledger whose state roots are mirrored",
			EnvVars:  []string{"EVM_CHAIN_ID"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "rpc-url",
			Aliases:  []string{"r"},
			Usage:    "The JSON-RPC URL of the ledger to read finalized headers from",
			EnvVars:  []string{"RPC_URL"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:    "window-size",
			Aliases: []string{"w"},
			Usage:   "The number of trailing finalized state roots kept in the oracle",
			EnvVars: []string{"WINDOW_SIZE"},
			Value:   32,
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Aliases: []string{"i"},
			Usage:   "The interval between sync cycles",
			EnvVars: []string{"POLL_INTERVAL"},
			Value:   30 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "call-timeout",
			Usage:   "The timeout of a single ledger or oracle call attempt",
			EnvVars: []string{"CALL_TIMEOUT"},
			Value:   10 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "cycle-timeout",
			Usage:   "The maximum duration of a whole sync cycle",
			EnvVars: []string{"CYCLE_TIMEOUT"},
			Value:   2 * time.Minute,
		},
		&cli.IntFlag{
			Name:    "max-retries",
			Usage:   "The number of retries after a failed ledger or oracle call",
			EnvVars: []string{"MAX_RETRIES"},
			Value:   3,
		},
		&cli.DurationFlag{
			Name:    "retry-initial-interval",
			Usage:   "The delay before the first retry",
			EnvVars: []string{"RETRY_INITIAL_INTERVAL"},
			Value:   500 * time.Millisecond,
		},
		&cli.DurationFlag{
			Name:    "retry-max-interval",
			Usage:   "The upper bound of a single retry delay",
			EnvVars: []string{"RETRY_MAX_INTERVAL"},
			Value:   10 * time.Second,
		},
		&cli.StringFlag{
			Name:    "oracle-type",
			Usage:   "The oracle to write to (evm or memory)",
			EnvVars: []string{"ORACLE_TYPE"},
			Value:   oracleTypeEVM,
		},
		&cli.StringFlag{
			Name:    "oracle-rpc-url",
			Usage:   "The JSON-RPC URL of the chain hosting the state root registry",
			EnvVars: []string{"ORACLE_RPC_URL"},
		},
		&cli.StringFlag{
			Name:    "oracle-address",
			Usage:   "The address of the state root registry contract",
			EnvVars: []string{"ORACLE_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "oracle-private-key",
			Usage:   "The hex encoded key that signs registry transactions",
			EnvVars: []string{"ORACLE_PRIVATE_KEY"},
		},
		&cli.Uint64Flag{
			Name:    "oracle-chain-id",
			Usage:   "The chain ID of the chain hosting the state root registry",
			EnvVars: []string{"ORACLE_CHAIN_ID"},
		},
		&cli.DurationFlag{
			Name:    "receipt-timeout",
			Aliases: []string{"rt"},
			Usage:   "The timeout for a registry transaction to be mined",
			EnvVars: []string{"RECEIPT_TIMEOUT"},
			Value:   time.Minute,
		},
		&cli.BoolFlag{
			Name:    "checkpoint-enabled",
			Usage:   "Persist the cursor in ClickHouse and resume from it on start",
			EnvVars: []string{"CHECKPOINT_ENABLED"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "checkpoint-table-name",
			Aliases: []string{"T"},
			Usage:   "The name of the table to write the checkpoint to",
			EnvVars: []string{"CHECKPOINT_TABLE_NAME"},
			Value:   "stateroot_checkpoints",
		},
		&cli.BoolFlag{
			Name:    "kafka-enabled",
			Usage:   "Produce a Kafka event for every root published or purged",
			EnvVars: []string{"KAFKA_ENABLED"},
			Value:   false,
		},
		// Unset kafka flags keep the values kafka.LoadProducerConfig reads from the environment.
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "The Kafka brokers to use (comma-separated list)",
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Aliases: []string{"t"},
			Usage:   "The Kafka topic window events are produced to",
			EnvVars: []string{"KAFKA_TOPIC"},
		},
		&cli.BoolFlag{
			Name:    "kafka-enable-logs",
			Aliases: []string{"l"},
			Usage:   "Enable Kafka logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},
		&cli.StringFlag{
			Name:    "kafka-client-id",
			Usage:   "The Kafka client ID to use",
			EnvVars: []string{"KAFKA_CLIENT_ID"},
		},
		&cli.DurationFlag{
			Name:    "kafka-flush-timeout",
			Usage:   "How long to wait for in-flight events on shutdown",
			EnvVars: []string{"KAFKA_FLUSH_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "kafka-topic-num-partitions",
			Usage:   "The number of partitions of the window event topic",
			EnvVars: []string{"KAFKA_TOPIC_NUM_PARTITIONS"},
		},
		&cli.IntFlag{
			Name:    "kafka-topic-replication-factor",
			Usage:   "The replication factor of the window event topic",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-username",
			Usage:   "The Kafka SASL username (SASL is disabled when empty)",
			EnvVars: []string{"KAFKA_SASL_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-password",
			Usage:   "The Kafka SASL password",
			EnvVars: []string{"KAFKA_SASL_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-mechanism",
			Usage:   "The Kafka SASL mechanism",
			EnvVars: []string{"KAFKA_SASL_MECHANISM"},
		},
		&cli.StringFlag{
			Name:    "kafka-security-protocol",
			Usage:   "The Kafka security protocol used with SASL",
			EnvVars: []string{"KAFKA_SECURITY_PROTOCOL", "KAFKA_SASL_SECURITY_PROTOCOL"},
		},
		&cli.DurationFlag{
			Name:    "lag-watchdog-interval",
			Usage:   "The interval between lag checks",
			EnvVars: []string{"LAG_WATCHDOG_INTERVAL"},
			Value:   5 * time.Minute,
		},
		&cli.Uint64Flag{
			Name:    "lag-watchdog-max-lag",
			Usage:   "The number of blocks the cursor may trail the finalized head before warning",
			EnvVars: []string{"LAG_WATCHDOG_MAX_LAG"},
			Value:   100,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "The host to listen on for the metrics server",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "The port to listen on for the metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "The deployment environment, attached to every metric",
			EnvVars: []string{"ENVIRONMENT"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "The cloud region, attached to every metric",
			EnvVars: []string{"REGION"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "The cloud provider, attached to every metric",
			EnvVars: []string{"CLOUD_PROVIDER"},
			Value:   "",
		},
	}
	return append(flags, clickHouseFlags()...)
}

// removeFlags returns all CLI flags for the remove-checkpoint command
func removeFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.Uint64Flag{
			Name:     "evm-chain-id",
			Aliases:  []string{"C"},
			Usage:    "The EVM chain ID whose checkpoint is removed",
			EnvVars:  []string{"EVM_CHAIN_ID"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "checkpoint-table-name",
			Aliases: []string{"T"},
			Usage:   "The name of the checkpoint table",
			EnvVars: []string{"CHECKPOINT_TABLE_NAME"},
			Value:   "stateroot_checkpoints",
		},
	}
	return append(flags, clickHouseFlags()...)
}

// clickHouseFlags carry no defaults of their own: unset flags keep the values
// clickhouse.Load reads from the environment.
func clickHouseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "clickhouse-hosts",
			Usage:   "The ClickHouse hosts (comma-separated list)",
			EnvVars: []string{"CLICKHOUSE_HOSTS"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-cluster",
			Usage:   "The ClickHouse cluster name; leave empty for a single node",
			EnvVars: []string{"CLICKHOUSE_CLUSTER"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-database",
			Usage:   "The ClickHouse database",
			EnvVars: []string{"CLICKHOUSE_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-username",
			Usage:   "The ClickHouse username",
			EnvVars: []string{"CLICKHOUSE_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-password",
			Usage:   "The ClickHouse password",
			EnvVars: []string{"CLICKHOUSE_PASSWORD"},
		},
		&cli.BoolFlag{
			Name:    "clickhouse-debug",
			Usage:   "Enable ClickHouse driver debug logs",
			EnvVars: []string{"CLICKHOUSE_DEBUG"},
		},
		&cli.BoolFlag{
			Name:    "clickhouse-use-tls",
			Usage:   "Connect to ClickHouse over TLS",
			EnvVars: []string{"CLICKHOUSE_USE_TLS"},
		},
		&cli.BoolFlag{
			Name:    "clickhouse-insecure-skip-verify",
			Usage:   "Skip TLS certificate verification",
			EnvVars: []string{"CLICKHOUSE_INSECURE_SKIP_VERIFY"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-execution-time",
			Usage:   "The maximum query execution time in seconds",
			EnvVars: []string{"CLICKHOUSE_MAX_EXECUTION_TIME"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-dial-timeout",
			Usage:   "The dial timeout in seconds",
			EnvVars: []string{"CLICKHOUSE_DIAL_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-open-conns",
			Usage:   "The maximum number of open connections",
			EnvVars: []string{"CLICKHOUSE_MAX_OPEN_CONNS"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-idle-conns",
			Usage:   "The maximum number of idle connections",
			EnvVars: []string{"CLICKHOUSE_MAX_IDLE_CONNS"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-conn-max-lifetime",
			Usage:   "The maximum connection lifetime in minutes",
			EnvVars: []string{"CLICKHOUSE_CONN_MAX_LIFETIME"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-client-name",
			Usage:   "The client name reported to ClickHouse",
			EnvVars: []string{"CLICKHOUSE_CLIENT_NAME"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-client-version",
			Usage:   "The client version reported to ClickHouse",
			EnvVars: []string{"CLICKHOUSE_CLIENT_VERSION"},
		},
	}
}
