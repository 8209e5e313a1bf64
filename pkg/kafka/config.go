package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// DefaultFlushTimeout bounds how long Close waits for in-flight window events.
const DefaultFlushTimeout = 15 * time.Second

// SASLConfig holds SASL authentication settings. An empty Username disables SASL.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"          envDefault:""`
	Password         string `env:"KAFKA_SASL_PASSWORD"          envDefault:""`
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"         envDefault:"SCRAM-SHA-512"`
	SecurityProtocol string `env:"KAFKA_SASL_SECURITY_PROTOCOL" envDefault:"SASL_SSL"`
}

// Enabled reports whether SASL credentials were configured.
func (s SASLConfig) Enabled() bool {
	return s.Username != ""
}

// ApplyToConfigMap sets the librdkafka SASL properties on cm when SASL is enabled.
func (s SASLConfig) ApplyToConfigMap(cm *kafka.ConfigMap) error {
	if !s.Enabled() {
		return nil
	}
	if s.Password == "" {
		return errors.New("kafka sasl password is required when a username is set")
	}
	return errors.Join(
		cm.SetKey("security.protocol", s.SecurityProtocol),
		cm.SetKey("sasl.mechanisms", s.Mechanism),
		cm.SetKey("sasl.username", s.Username),
		cm.SetKey("sasl.password", s.Password),
	)
}

// ProducerConfig holds the configuration of the window event producer.
type ProducerConfig struct {
	BootstrapServers       string        `env:"KAFKA_BROKERS"                        envDefault:"localhost:9092"`   // Kafka broker addresses
	Topic                  string        `env:"KAFKA_TOPIC"                          envDefault:"state-root-window"` // Topic window events are produced to
	ClientID               string        `env:"KAFKA_CLIENT_ID"                      envDefault:"stateroot-syncer"`
	EnableLogs             bool          `env:"KAFKA_ENABLE_LOGS"                    envDefault:"false"` // Enable librdkafka client logs
	FlushTimeout           time.Duration `env:"KAFKA_FLUSH_TIMEOUT"                  envDefault:"15s"`
	TopicNumPartitions     int           `env:"KAFKA_TOPIC_NUM_PARTITIONS"           envDefault:"1"` // One partition keeps events totally ordered
	TopicReplicationFactor int           `env:"KAFKA_TOPIC_REPLICATION_FACTOR"       envDefault:"1"`
	SASL                   SASLConfig
}

// LoadProducerConfig loads the producer configuration from environment variables.
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("failed to parse producer config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for missing values.
func (c ProducerConfig) Validate() error {
	if c.BootstrapServers == "" {
		return errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return c.TopicConfig().Validate()
}

// TopicConfig returns the topic settings EnsureTopic should apply.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.TopicNumPartitions,
		ReplicationFactor: c.TopicReplicationFactor,
	}
}

// ConfigMap builds the librdkafka configuration for an idempotent producer.
func (c ProducerConfig) ConfigMap() (*kafka.ConfigMap, error) {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"client.id":              c.ClientID,
		"acks":                   "all",
		"enable.idempotence":     true,
		"go.logs.channel.enable": c.EnableLogs,
	}
	if err := c.SASL.ApplyToConfigMap(cm); err != nil {
		return nil, err
	}
	return cm, nil
}

// AdminConfigMap builds the configuration for an admin client talking to the same cluster.
func (c ProducerConfig) AdminConfigMap() (*kafka.ConfigMap, error) {
	cm := &kafka.ConfigMap{
		"bootstrap.servers": c.BootstrapServers,
		"client.id":         c.ClientID + "-admin",
	}
	if err := c.SASL.ApplyToConfigMap(cm); err != nil {
		return nil, err
	}
	return cm, nil
}
