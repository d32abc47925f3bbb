package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/avalanche-logfilter/internal/jsonrpc"
	"github.com/ava-labs/avalanche-logfilter/pkg/query"
	"github.com/ava-labs/avalanche-logfilter/pkg/registry"
)

// runFlags returns all CLI flags for the logfilterd run command
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		dataDirFlag(),
		&cli.Int64Flag{
			Name:    "cache-size",
			Usage:   "Pebble block cache size in bytes",
			EnvVars: []string{"CACHE_SIZE"},
			Value:   64 << 20,
		},
		&cli.BoolFlag{
			Name:    "sync",
			Usage:   "Fsync the write-ahead log on every appended block",
			EnvVars: []string{"SYNC"},
			Value:   true,
		},

		// JSON-RPC
		&cli.StringFlag{
			Name:    "rpc-addr",
			Aliases: []string{"r"},
			Usage:   "The address the JSON-RPC server listens on",
			EnvVars: []string{"RPC_ADDR"},
			Value:   ":8545",
		},
		&cli.DurationFlag{
			Name:    "rpc-timeout",
			Usage:   "Read and write timeout of JSON-RPC requests",
			EnvVars: []string{"RPC_TIMEOUT"},
			Value:   jsonrpc.DefaultHTTPTimeout,
		},
		&cli.IntFlag{
			Name:    "rpc-batch-limit",
			Usage:   "Maximum number of requests in a JSON-RPC batch",
			EnvVars: []string{"RPC_BATCH_LIMIT"},
			Value:   jsonrpc.DefaultBatchLimit,
		},
		&cli.BoolFlag{
			Name:    "rpc-unsafe-cors",
			Usage:   "Allow cross-origin requests from any origin",
			EnvVars: []string{"RPC_UNSAFE_CORS"},
		},

		// Filters
		&cli.DurationFlag{
			Name:    "filter-timeout",
			Usage:   "How long an unused filter lives before it is removed (0 disables expiry)",
			EnvVars: []string{"FILTER_TIMEOUT"},
			Value:   registry.DefaultTimeout,
		},
		&cli.DurationFlag{
			Name:    "filter-reap-interval",
			Usage:   "How often expired filters are removed",
			EnvVars: []string{"FILTER_REAP_INTERVAL"},
			Value:   registry.DefaultReapInterval,
		},
		&cli.IntFlag{
			Name:    "max-filters",
			Usage:   "Maximum number of installed filters (0 means unlimited)",
			EnvVars: []string{"MAX_FILTERS"},
		},
		&cli.IntFlag{
			Name:    "max-concurrent-queries",
			Aliases: []string{"c"},
			Usage:   "Maximum number of log queries evaluated concurrently",
			EnvVars: []string{"MAX_CONCURRENT_QUERIES"},
			Value:   query.DefaultMaxConcurrentQueries,
		},
		&cli.Uint64Flag{
			Name:    "max-block-range",
			Usage:   "Maximum number of blocks a single query may span (0 means unlimited)",
			EnvVars: []string{"MAX_BLOCK_RANGE"},
		},
		&cli.IntFlag{
			Name:    "max-logs",
			Usage:   "Maximum number of logs a single query may return (0 means unlimited)",
			EnvVars: []string{"MAX_LOGS"},
		},

		// Kafka
		&cli.StringFlag{
			Name:    "kafka-bootstrap-servers",
			Aliases: []string{"b"},
			Usage:   "Kafka bootstrap servers; ingestion from Kafka is disabled when empty",
			EnvVars: []string{"KAFKA_BOOTSTRAP_SERVERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Aliases: []string{"t"},
			Usage:   "The Kafka topic carrying blocks",
			EnvVars: []string{"KAFKA_TOPIC"},
			Value:   "blocks",
		},
		&cli.StringFlag{
			Name:    "kafka-group-id",
			Aliases: []string{"g"},
			Usage:   "Kafka consumer group ID",
			EnvVars: []string{"KAFKA_GROUP_ID"},
			Value:   "logfilter",
		},
		&cli.StringFlag{
			Name:    "kafka-auto-offset-reset",
			Usage:   "Kafka auto offset reset policy (earliest, latest)",
			EnvVars: []string{"KAFKA_AUTO_OFFSET_RESET"},
			Value:   "earliest",
		},
		&cli.BoolFlag{
			Name:    "kafka-enable-logs",
			Aliases: []string{"l"},
			Usage:   "Enable Kafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},

		// ClickHouse
		&cli.BoolFlag{
			Name:    "clickhouse-enabled",
			Usage:   "Mirror ingested logs into ClickHouse (connection settings come from CLICKHOUSE_* variables)",
			EnvVars: []string{"CLICKHOUSE_ENABLED"},
		},
		&cli.StringSliceFlag{
			Name:    "clickhouse-hosts",
			Usage:   "ClickHouse server hosts (comma-separated)",
			EnvVars: []string{"CLICKHOUSE_HOSTS"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-logs-table",
			Usage:   "ClickHouse table receiving ingested logs",
			EnvVars: []string{"CLICKHOUSE_LOGS_TABLE"},
		},

		// Watchdog
		&cli.DurationFlag{
			Name:    "watchdog-interval",
			Usage:   "How often the ingestion watchdog checks for stalls",
			EnvVars: []string{"WATCHDOG_INTERVAL"},
			Value:   30 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "watchdog-max-idle",
			Usage:   "How long ingestion may go without a new block before a warning",
			EnvVars: []string{"WATCHDOG_MAX_IDLE"},
			Value:   2 * time.Minute,
		},

		// Metrics
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.Uint64Flag{
			Name:    "evm-chain-id",
			Aliases: []string{"C"},
			Usage:   "EVM chain ID used as a metrics label",
			EnvVars: []string{"EVM_CHAIN_ID"},
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
}

// removeFlags returns the CLI flags for the logfilterd remove command
func removeFlags() []cli.Flag {
	return []cli.Flag{dataDirFlag()}
}

func dataDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "data-dir",
		Aliases:  []string{"d"},
		Usage:    "Directory of the log store database",
		EnvVars:  []string{"DATA_DIR"},
		Required: true,
	}
}
