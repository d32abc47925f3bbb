// Package mocks provides testify mocks of the clickhouse-go driver.
package mocks

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// MockConn mocks driver.Conn. Query-style methods are matched on
// (ctx, query, args...).
type MockConn struct {
	mock.Mock
}

func (m *MockConn) called(method string, ctx context.Context, query string, extra ...any) mock.Arguments {
	return m.MethodCalled(method, append([]any{ctx, query}, extra...)...)
}

func (m *MockConn) Contributors() []string {
	out, _ := m.Called().Get(0).([]string)
	return out
}

func (m *MockConn) ServerVersion() (*driver.ServerVersion, error) {
	args := m.Called()
	v, _ := args.Get(0).(*driver.ServerVersion)
	return v, args.Error(1)
}

func (m *MockConn) Select(ctx context.Context, _ any, query string, args ...any) error {
	return m.called("Select", ctx, query, args...).Error(0)
}

func (m *MockConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	res := m.called("Query", ctx, query, args...)
	rows, _ := res.Get(0).(driver.Rows)
	return rows, res.Error(1)
}

func (m *MockConn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	row, _ := m.called("QueryRow", ctx, query, args...).Get(0).(driver.Row)
	return row
}

func (m *MockConn) Exec(ctx context.Context, query string, args ...any) error {
	return m.called("Exec", ctx, query, args...).Error(0)
}

func (m *MockConn) AsyncInsert(ctx context.Context, query string, wait bool, args ...any) error {
	return m.called("AsyncInsert", ctx, query, append([]any{wait}, args...)...).Error(0)
}

// PrepareBatch is matched on (ctx, query); options are ignored.
func (m *MockConn) PrepareBatch(ctx context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	res := m.called("PrepareBatch", ctx, query)
	batch, _ := res.Get(0).(driver.Batch)
	return batch, res.Error(1)
}

func (m *MockConn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockConn) Stats() driver.Stats {
	stats, _ := m.Called().Get(0).(driver.Stats)
	return stats
}

func (m *MockConn) Close() error {
	return m.Called().Error(0)
}
