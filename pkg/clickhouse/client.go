package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client is a ClickHouse connection that answered a ping.
type Client interface {
	Conn() driver.Conn
	Ping(ctx context.Context) error
	Close() error
}

const pingTimeout = 10 * time.Second

type client struct {
	conn driver.Conn
}

// New opens a connection and pings it, retrying up to cfg.PingAttempts times.
// The connection is closed when no ping succeeds.
func New(cfg Config, sugar *zap.SugaredLogger) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clickhouse config: %w", err)
	}
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	conn, err := clickhouse.Open(options(cfg, sugar))
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	return connect(context.Background(), conn, cfg, sugar)
}

func connect(ctx context.Context, conn driver.Conn, cfg Config, sugar *zap.SugaredLogger) (Client, error) {
	if err := pingWithRetry(ctx, conn, cfg.PingAttempts, cfg.PingBackoff, sugar); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	sugar.Infow("connected to ClickHouse", "hosts", cfg.Hosts, "database", cfg.Database)
	return &client{conn: conn}, nil
}

func pingWithRetry(ctx context.Context, conn driver.Conn, attempts int, backoff time.Duration, sugar *zap.SugaredLogger) error {
	attempts = max(attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = conn.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}

		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			// Server exceptions are final.
			sugar.Errorw("ClickHouse rejected ping", "code", exception.Code, "error", exception.Message)
			return err
		}
		sugar.Warnw("failed to ping ClickHouse", "attempt", attempt, "attempts", attempts, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func options(cfg Config, sugar *zap.SugaredLogger) *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		Settings: clickhouse.Settings{
			"max_execution_time": cfg.MaxExecutionTime,
			"max_block_size":     cfg.MaxBlockSize,
		},
		Compression:          &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:          time.Duration(cfg.DialTimeout) * time.Second,
		MaxOpenConns:         cfg.MaxOpenConns,
		MaxIdleConns:         cfg.MaxIdleConns,
		ConnMaxLifetime:      time.Duration(cfg.ConnMaxLifetime) * time.Minute,
		ConnOpenStrategy:     clickhouse.ConnOpenInOrder,
		BlockBufferSize:      uint8(cfg.BlockBufferSize), //nolint:gosec // range checked by Validate
		MaxCompressionBuffer: cfg.MaxCompressionBuffer,
		TLS: &tls.Config{
			//nolint:gosec // InsecureSkipVerify is configurable for development setups
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	opts.ClientInfo.Products = append(opts.ClientInfo.Products, struct {
		Name    string
		Version string
	}{Name: cfg.ClientName, Version: cfg.ClientVersion})
	if cfg.Debug {
		opts.Debug = true
		opts.Debugf = sugar.Debugf
	}
	return opts
}

func (c *client) Conn() driver.Conn              { return c.conn }
func (c *client) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }
func (c *client) Close() error                   { return c.conn.Close() }
