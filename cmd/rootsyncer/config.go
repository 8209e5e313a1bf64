package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/ava-labs/stateroot-syncer/pkg/clickhouse"
	"github.com/ava-labs/stateroot-syncer/pkg/kafka"
	oracleevm "github.com/ava-labs/stateroot-syncer/pkg/oracle/evm"
	"github.com/ava-labs/stateroot-syncer/pkg/retry"
)

const (
	oracleTypeEVM    = "evm"
	oracleTypeMemory = "memory"

	// maxWindowSize keeps a bootstrap batch within a single registry transaction.
	maxWindowSize = 4096
)

// Config holds all configuration for the rootsyncer application
type Config struct {
	// Application settings
	Verbose bool

	// Ledger settings
	EVMChainID uint64
	RPCURL     string

	// Window settings
	WindowSize   uint64
	PollInterval time.Duration
	CycleTimeout time.Duration
	Retry        retry.Config

	// Oracle settings
	OracleType       string
	OracleRPCURL     string
	OracleAddress    string
	OraclePrivateKey string
	OracleChainID    uint64
	ReceiptTimeout   time.Duration

	// Checkpoint settings
	CheckpointEnabled   bool
	CheckpointTableName string
	ClickHouse          clickhouse.Config

	// Kafka settings
	KafkaEnabled bool
	Kafka        kafka.ProducerConfig

	// Lag watchdog settings
	LagWatchdogInterval time.Duration
	LagWatchdogMaxLag   uint64

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// OracleConfig returns the registry settings for the evm oracle.
func (c *Config) OracleConfig() oracleevm.Config {
	return oracleevm.Config{
		RPCURL:         c.OracleRPCURL,
		Address:        common.HexToAddress(c.OracleAddress),
		PrivateKey:     c.OraclePrivateKey,
		ChainID:        c.OracleChainID,
		ReceiptTimeout: c.ReceiptTimeout,
	}
}

// OracleRetryConfig returns the retry policy for oracle writes. An attempt
// against the registry includes waiting for the receipt.
func (c *Config) OracleRetryConfig() retry.Config {
	if c.OracleType == oracleTypeEVM {
		return oracleevm.AttemptConfig(c.Retry, c.ReceiptTimeout)
	}
	return c.Retry
}

// MemoryOracleCapacity bounds the dry-run oracle. A cycle publishes before it
// purges, so the store briefly holds up to two windows.
func (c *Config) MemoryOracleCapacity() int {
	return int(2 * c.WindowSize)
}

// Validate checks the configuration before any connection is opened.
func (c *Config) Validate() error {
	if c.EVMChainID == 0 {
		return errors.New("evm chain ID is required")
	}
	if c.RPCURL == "" {
		return errors.New("rpc url is required")
	}
	if c.WindowSize == 0 {
		return errors.New("invalid window size: must be greater than 0")
	}
	if c.WindowSize > maxWindowSize {
		return fmt.Errorf("invalid window size: must not exceed %d", maxWindowSize)
	}
	if c.PollInterval <= 0 {
		return errors.New("invalid poll interval: must be greater than 0")
	}
	if c.CycleTimeout <= 0 {
		return errors.New("invalid cycle timeout: must be greater than 0")
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}

	switch c.OracleType {
	case oracleTypeEVM:
		if c.OracleRPCURL == "" {
			return errors.New("oracle rpc url is required for the evm oracle")
		}
		if !common.IsHexAddress(c.OracleAddress) {
			return fmt.Errorf("invalid oracle address %q", c.OracleAddress)
		}
		if c.OraclePrivateKey == "" {
			return errors.New("oracle private key is required for the evm oracle")
		}
		if c.OracleChainID == 0 {
			return errors.New("oracle chain ID is required for the evm oracle")
		}
		if c.ReceiptTimeout <= 0 {
			return errors.New("invalid receipt timeout: must be greater than 0")
		}
		if c.CycleTimeout < c.OracleRetryConfig().CallTimeout {
			return errors.New("invalid cycle timeout: must cover the call timeout plus the receipt timeout")
		}
	case oracleTypeMemory:
	default:
		return fmt.Errorf("invalid oracle type: %s", c.OracleType)
	}

	if c.CheckpointEnabled {
		if c.CheckpointTableName == "" {
			return errors.New("checkpoint table name is required")
		}
		if err := c.ClickHouse.Validate(); err != nil {
			return err
		}
	}
	if c.KafkaEnabled {
		if err := c.Kafka.Validate(); err != nil {
			return err
		}
	}
	if c.LagWatchdogInterval <= 0 {
		return errors.New("invalid lag watchdog interval: must be greater than 0")
	}
	return nil
}

// buildConfig builds a Config from CLI context flags. ClickHouse and Kafka
// settings start from their environment variables and any flag given on the
// command line takes precedence.
func buildConfig(c *cli.Context) (*Config, error) {
	chCfg, err := buildClickHouseConfig(c)
	if err != nil {
		return nil, err
	}
	kafkaCfg, err := buildKafkaConfig(c)
	if err != nil {
		return nil, err
	}
	return &Config{
		Verbose:      c.Bool("verbose"),
		EVMChainID:   c.Uint64("evm-chain-id"),
		RPCURL:       c.String("rpc-url"),
		WindowSize:   c.Uint64("window-size"),
		PollInterval: c.Duration("poll-interval"),
		CycleTimeout: c.Duration("cycle-timeout"),
		Retry: retry.Config{
			MaxRetries:      c.Int("max-retries"),
			InitialInterval: c.Duration("retry-initial-interval"),
			MaxInterval:     c.Duration("retry-max-interval"),
			CallTimeout:     c.Duration("call-timeout"),
		},
		OracleType:          c.String("oracle-type"),
		OracleRPCURL:        c.String("oracle-rpc-url"),
		OracleAddress:       c.String("oracle-address"),
		OraclePrivateKey:    c.String("oracle-private-key"),
		OracleChainID:       c.Uint64("oracle-chain-id"),
		ReceiptTimeout:      c.Duration("receipt-timeout"),
		CheckpointEnabled:   c.Bool("checkpoint-enabled"),
		CheckpointTableName: c.String("checkpoint-table-name"),
		ClickHouse:          chCfg,
		KafkaEnabled:        c.Bool("kafka-enabled"),
		Kafka:               kafkaCfg,
		LagWatchdogInterval: c.Duration("lag-watchdog-interval"),
		LagWatchdogMaxLag:   c.Uint64("lag-watchdog-max-lag"),
		MetricsHost:         c.String("metrics-host"),
		MetricsPort:         c.Int("metrics-port"),
		Environment:         c.String("environment"),
		Region:              c.String("region"),
		CloudProvider:       c.String("cloud-provider"),
	}, nil
}

// buildClickHouseConfig loads the ClickHouse settings from the environment and
// applies the flags that were set.
func buildClickHouseConfig(c *cli.Context) (clickhouse.Config, error) {
	cfg, err := clickhouse.Load()
	if err != nil {
		return clickhouse.Config{}, err
	}
	if c.IsSet("clickhouse-hosts") {
		cfg.Hosts = splitHosts(c.StringSlice("clickhouse-hosts"))
	}
	setString(c, "clickhouse-cluster", &cfg.Cluster)
	setString(c, "clickhouse-database", &cfg.Database)
	setString(c, "clickhouse-username", &cfg.Username)
	setString(c, "clickhouse-password", &cfg.Password)
	setBool(c, "clickhouse-debug", &cfg.Debug)
	setBool(c, "clickhouse-use-tls", &cfg.UseTLS)
	setBool(c, "clickhouse-insecure-skip-verify", &cfg.InsecureSkipVerify)
	setInt(c, "clickhouse-max-execution-time", &cfg.MaxExecutionTime)
	setInt(c, "clickhouse-dial-timeout", &cfg.DialTimeout)
	setInt(c, "clickhouse-max-open-conns", &cfg.MaxOpenConns)
	setInt(c, "clickhouse-max-idle-conns", &cfg.MaxIdleConns)
	setInt(c, "clickhouse-conn-max-lifetime", &cfg.ConnMaxLifetime)
	setString(c, "clickhouse-client-name", &cfg.ClientName)
	setString(c, "clickhouse-client-version", &cfg.ClientVersion)
	return cfg, nil
}

// buildKafkaConfig loads the producer settings from the environment and
// applies the flags that were set.
func buildKafkaConfig(c *cli.Context) (kafka.ProducerConfig, error) {
	cfg, err := kafka.LoadProducerConfig()
	if err != nil {
		return kafka.ProducerConfig{}, err
	}
	setString(c, "kafka-brokers", &cfg.BootstrapServers)
	setString(c, "kafka-topic", &cfg.Topic)
	setString(c, "kafka-client-id", &cfg.ClientID)
	setBool(c, "kafka-enable-logs", &cfg.EnableLogs)
	setDuration(c, "kafka-flush-timeout", &cfg.FlushTimeout)
	setInt(c, "kafka-topic-num-partitions", &cfg.TopicNumPartitions)
	setInt(c, "kafka-topic-replication-factor", &cfg.TopicReplicationFactor)
	setString(c, "kafka-sasl-username", &cfg.SASL.Username)
	setString(c, "kafka-sasl-password", &cfg.SASL.Password)
	setString(c, "kafka-sasl-mechanism", &cfg.SASL.Mechanism)
	setString(c, "kafka-security-protocol", &cfg.SASL.SecurityProtocol)
	return cfg, nil
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func setBool(c *cli.Context, name string, dst *bool) {
	if c.IsSet(name) {
		*dst = c.Bool(name)
	}
}

func setInt(c *cli.Context, name string, dst *int) {
	if c.IsSet(name) {
		*dst = c.Int(name)
	}
}

func setDuration(c *cli.Context, name string, dst *time.Duration) {
	if c.IsSet(name) {
		*dst = c.Duration(name)
	}
}

// splitHosts accepts both repeated flags and a single comma-separated value.
func splitHosts(values []string) []string {
	var hosts []string
	for _, v := range values {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
	}
	return hosts
}
