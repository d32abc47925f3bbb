// Package testutils builds ClickHouse clients around mock connections.
package testutils

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Client has the method set of clickhouse.Client. It is declared here so the
// clickhouse package's own tests can use this package without an import cycle.
type Client interface {
	Conn() driver.Conn
	Ping(ctx context.Context) error
	Close() error
}

// NewTestClient wraps conn without dialing.
func NewTestClient(conn driver.Conn) Client {
	return &testClient{conn: conn}
}

type testClient struct {
	conn driver.Conn
}

func (c *testClient) Conn() driver.Conn              { return c.conn }
func (c *testClient) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }
func (c *testClient) Close() error                   { return c.conn.Close() }
