package kafka

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// Default timeout values for the block consumer
const (
	DefaultSessionTimeout  = 45 * time.Second
	DefaultMaxPollInterval = 300 * time.Second
	DefaultPollTimeout     = 100 * time.Millisecond
)

// ConsumerConfig holds the configuration of the block source consumer.
type ConsumerConfig struct {
	Topic            string         `env:"KAFKA_TOPIC"             envDefault:"blocks"`         // Topic carrying produced blocks
	BootstrapServers string         `env:"KAFKA_BOOTSTRAP_SERVERS"`                             // Kafka broker addresses; empty disables the source
	GroupID          string         `env:"KAFKA_GROUP_ID"          envDefault:"logfilter"`      // Consumer group ID for offset management
	AutoOffsetReset  string         `env:"KAFKA_AUTO_OFFSET_RESET" envDefault:"earliest"`       // Offset reset strategy: "earliest" or "latest"
	SessionTimeout   *time.Duration `env:"KAFKA_SESSION_TIMEOUT"`                               // Session timeout for the consumer
	MaxPollInterval  *time.Duration `env:"KAFKA_MAX_POLL_INTERVAL"`                             // Max time between polls before the consumer leaves the group
	PollTimeout      *time.Duration `env:"KAFKA_POLL_TIMEOUT"`                                  // Timeout of a single poll
	EnableLogs       bool           `env:"KAFKA_ENABLE_LOGS"       envDefault:"false"`          // Enable librdkafka client logs
}

// LoadConsumerConfig loads Kafka configuration from environment variables
func LoadConsumerConfig() ConsumerConfig {
	var cfg ConsumerConfig
	if err := env.Parse(&cfg); err != nil {
		logger, logErr := zap.NewProduction()
		if logErr == nil {
			logger.Sugar().Errorw("failed to parse consumer config", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "failed to parse consumer config: %v\n", err)
		}
		os.Exit(1)
	}
	return cfg
}

// WithDefaults returns a copy of the config with default values filled in for any nil pointer fields.
func (c ConsumerConfig) WithDefaults() ConsumerConfig {
	if c.SessionTimeout == nil {
		timeout := DefaultSessionTimeout
		c.SessionTimeout = &timeout
	}
	if c.MaxPollInterval == nil {
		interval := DefaultMaxPollInterval
		c.MaxPollInterval = &interval
	}
	if c.PollTimeout == nil {
		timeout := DefaultPollTimeout
		c.PollTimeout = &timeout
	}
	return c
}

// Enabled reports whether a broker is configured.
func (c ConsumerConfig) Enabled() bool {
	return c.BootstrapServers != ""
}

func (c ConsumerConfig) Validate() error {
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka group id is required")
	}
	switch c.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("invalid auto offset reset %q", c.AutoOffsetReset)
	}
	return nil
}
