package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/avalanche-logfilter/internal/jsonrpc"
	"github.com/ava-labs/avalanche-logfilter/pkg/clickhouse"
	"github.com/ava-labs/avalanche-logfilter/pkg/filters"
	"github.com/ava-labs/avalanche-logfilter/pkg/kafka"
	"github.com/ava-labs/avalanche-logfilter/pkg/logstore"
	"github.com/ava-labs/avalanche-logfilter/pkg/query"
	"github.com/ava-labs/avalanche-logfilter/pkg/registry"
)

// Config holds all configuration for the logfilterd application
type Config struct {
	// Application settings
	Verbose bool

	// Store settings
	Store logstore.PebbleConfig

	// Serving settings
	RPC      jsonrpc.ServerConfig
	Registry registry.Config
	Query    query.Config

	// Ingestion settings
	Kafka             kafka.ConsumerConfig
	ClickHouseEnabled bool
	ClickHouse        clickhouse.Config
	WatchdogInterval  time.Duration
	WatchdogMaxIdle   time.Duration

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	EVMChainID    uint64
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

func (c *Config) Validate() error {
	if c.Store.DataDir == "" {
		return errors.New("data dir is required")
	}
	if c.Store.CacheSize < 0 {
		return errors.New("cache size must not be negative")
	}
	if c.RPC.Addr == "" {
		return errors.New("rpc address is required")
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	if err := c.Query.Validate(); err != nil {
		return err
	}
	if c.Kafka.Enabled() {
		if err := c.Kafka.Validate(); err != nil {
			return fmt.Errorf("invalid kafka config: %w", err)
		}
	}
	if c.ClickHouseEnabled {
		if err := c.ClickHouse.Validate(); err != nil {
			return fmt.Errorf("invalid clickhouse config: %w", err)
		}
	}
	if c.WatchdogInterval <= 0 {
		return errors.New("watchdog interval must be positive")
	}
	if c.WatchdogMaxIdle <= 0 {
		return errors.New("watchdog max idle must be positive")
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics port %d out of range", c.MetricsPort)
	}
	return nil
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	store := logstore.DefaultPebbleConfig(c.String("data-dir"))
	store.CacheSize = c.Int64("cache-size")
	store.Sync = c.Bool("sync")

	rpcCfg := jsonrpc.DefaultServerConfig(c.String("rpc-addr"))
	rpcCfg.HTTPTimeout = c.Duration("rpc-timeout")
	rpcCfg.BatchLimit = c.Int("rpc-batch-limit")
	rpcCfg.UnsafeCORS = c.Bool("rpc-unsafe-cors")

	cfg := &Config{
		Verbose: c.Bool("verbose"),
		Store:   store,
		RPC:     rpcCfg,
		Registry: registry.Config{
			Timeout:      c.Duration("filter-timeout"),
			ReapInterval: c.Duration("filter-reap-interval"),
			MaxFilters:   c.Int("max-filters"),
		},
		Query: query.Config{
			MaxConcurrentQueries: c.Int("max-concurrent-queries"),
			Limits: filters.Options{
				MaxBlockRange: c.Uint64("max-block-range"),
				MaxLogs:       c.Int("max-logs"),
			},
		},
		Kafka:             buildKafkaConfig(c),
		ClickHouseEnabled: c.Bool("clickhouse-enabled"),
		WatchdogInterval:  c.Duration("watchdog-interval"),
		WatchdogMaxIdle:   c.Duration("watchdog-max-idle"),
		MetricsHost:       c.String("metrics-host"),
		MetricsPort:       c.Int("metrics-port"),
		EVMChainID:        c.Uint64("evm-chain-id"),
		Environment:       c.String("environment"),
		Region:            c.String("region"),
		CloudProvider:     c.String("cloud-provider"),
	}
	if cfg.ClickHouseEnabled {
		cfg.ClickHouse = buildClickHouseConfig(c)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildKafkaConfig starts from the KAFKA_* environment and applies the flags
// on top of it.
func buildKafkaConfig(c *cli.Context) kafka.ConsumerConfig {
	cfg := kafka.LoadConsumerConfig()
	cfg.BootstrapServers = c.String("kafka-bootstrap-servers")
	cfg.Topic = c.String("kafka-topic")
	cfg.GroupID = c.String("kafka-group-id")
	cfg.AutoOffsetReset = c.String("kafka-auto-offset-reset")
	cfg.EnableLogs = c.Bool("kafka-enable-logs")
	return cfg.WithDefaults()
}

// buildClickHouseConfig starts from the CLICKHOUSE_* environment and applies
// the flags that were set explicitly.
func buildClickHouseConfig(c *cli.Context) clickhouse.Config {
	cfg := clickhouse.Load()
	if c.IsSet("clickhouse-hosts") {
		// A single comma-separated value is split as well.
		var hosts []string
		for _, h := range c.StringSlice("clickhouse-hosts") {
			for _, part := range strings.Split(h, ",") {
				if part = strings.TrimSpace(part); part != "" {
					hosts = append(hosts, part)
				}
			}
		}
		cfg.Hosts = hosts
	}
	if c.IsSet("clickhouse-logs-table") {
		cfg.LogsTable = c.String("clickhouse-logs-table")
	}
	return cfg
}
