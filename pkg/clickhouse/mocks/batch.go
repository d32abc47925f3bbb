package mocks

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

var (
	_ driver.Conn  = (*MockConn)(nil)
	_ driver.Batch = (*MockBatch)(nil)
)

// MockBatch is a mock implementation of driver.Batch. Appended rows are kept
// in Appended in addition to being recorded as calls.
type MockBatch struct {
	mock.Mock
	Appended [][]any
}

func (m *MockBatch) Abort() error {
	return m.Called().Error(0)
}

func (m *MockBatch) Append(v ...any) error {
	m.Appended = append(m.Appended, v)
	return m.Called(v...).Error(0)
}

func (m *MockBatch) AppendStruct(v any) error {
	return m.Called(v).Error(0)
}

func (m *MockBatch) Column(i int) driver.BatchColumn {
	args := m.Called(i)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(driver.BatchColumn)
}

func (m *MockBatch) Flush() error {
	return m.Called().Error(0)
}

func (m *MockBatch) Send() error {
	return m.Called().Error(0)
}

func (m *MockBatch) IsSent() bool {
	return m.Called().Bool(0)
}

func (m *MockBatch) Rows() int {
	return len(m.Appended)
}

func (m *MockBatch) Columns() []column.Interface {
	return nil
}
