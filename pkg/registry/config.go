package registry

import (
	"errors"
	"time"
)

const (
	DefaultTimeout      = 5 * time.Minute
	DefaultReapInterval = 30 * time.Second
)

// Config holds registry limits and the expiry policy.
type Config struct {
	// Timeout is how long a filter may go unused before it is removed.
	// Zero disables expiry.
	Timeout time.Duration
	// ReapInterval is how often the reaper looks for expired filters.
	ReapInterval time.Duration
	// MaxFilters caps the number of live filters. Zero means unlimited.
	MaxFilters int
}

func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		ReapInterval: DefaultReapInterval,
	}
}

func (c Config) Validate() error {
	if c.Timeout < 0 {
		return errors.New("filter timeout must not be negative")
	}
	if c.Timeout > 0 && c.ReapInterval <= 0 {
		return errors.New("reap interval must be positive when filters expire")
	}
	if c.MaxFilters < 0 {
		return errors.New("max filters must not be negative")
	}
	return nil
}
