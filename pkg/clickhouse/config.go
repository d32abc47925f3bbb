package clickhouse

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// Config holds the configuration for a ClickHouse client.
// MaxBlockSize is the recommended maximum number of rows ClickHouse puts in
// one processing block when reading; see
// https://clickhouse.com/docs/operations/settings/settings
type Config struct {
	Hosts                []string `env:"CLICKHOUSE_HOSTS" envSeparator:"," envDefault:"localhost:9000"`
	Database             string   `env:"CLICKHOUSE_DATABASE" envDefault:"default"`
	Username             string   `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	Password             string   `env:"CLICKHOUSE_PASSWORD" envDefault:""`
	Debug                bool     `env:"CLICKHOUSE_DEBUG" envDefault:"false"`
	InsecureSkipVerify   bool     `env:"CLICKHOUSE_INSECURE_SKIP_VERIFY" envDefault:"true"`
	MaxExecutionTime     int      `env:"CLICKHOUSE_MAX_EXECUTION_TIME" envDefault:"60"` // seconds
	DialTimeout          int      `env:"CLICKHOUSE_DIAL_TIMEOUT" envDefault:"30"`       // seconds
	MaxOpenConns         int      `env:"CLICKHOUSE_MAX_OPEN_CONNS" envDefault:"5"`
	MaxIdleConns         int      `env:"CLICKHOUSE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime      int      `env:"CLICKHOUSE_CONN_MAX_LIFETIME" envDefault:"10"` // minutes
	BlockBufferSize      int      `env:"CLICKHOUSE_BLOCK_BUFFER_SIZE" envDefault:"10"`
	MaxBlockSize         int      `env:"CLICKHOUSE_MAX_BLOCK_SIZE" envDefault:"1000"`
	MaxCompressionBuffer int      `env:"CLICKHOUSE_MAX_COMPRESSION_BUFFER" envDefault:"10240"` // bytes
	ClientName           string   `env:"CLICKHOUSE_CLIENT_NAME" envDefault:"logfilter"`
	ClientVersion        string   `env:"CLICKHOUSE_CLIENT_VERSION" envDefault:"1.0"`
	LogsTable            string   `env:"CLICKHOUSE_LOGS_TABLE" envDefault:"raw_logs"`

	// PingAttempts is how many times New pings before giving up. Zero means once.
	PingAttempts int           `env:"CLICKHOUSE_PING_ATTEMPTS" envDefault:"3"`
	PingBackoff  time.Duration `env:"CLICKHOUSE_PING_BACKOFF" envDefault:"1s"`
}

// Load loads ClickHouse configuration from environment variables
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger, logErr := zap.NewProduction()
		if logErr == nil {
			logger.Sugar().Errorw("failed to parse clickhouse config", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "failed to parse clickhouse config: %v\n", err)
		}
		os.Exit(1)
	}
	return cfg
}

func (c Config) Validate() error {
	if len(c.Hosts) == 0 {
		return errors.New("at least one clickhouse host is required")
	}
	if c.LogsTable == "" {
		return errors.New("clickhouse logs table is required")
	}
	if c.BlockBufferSize < 0 || c.BlockBufferSize > 255 {
		return fmt.Errorf("block buffer size %d out of range [0, 255]", c.BlockBufferSize)
	}
	if c.PingAttempts < 0 || c.PingBackoff < 0 {
		return errors.New("ping attempts and backoff must not be negative")
	}
	return nil
}
