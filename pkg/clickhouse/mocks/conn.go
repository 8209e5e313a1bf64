// Package mocks provides testify mocks of the ClickHouse driver so repositories
// can be tested without a server.
package mocks

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// Conn is a mock driver.Conn. Query methods record the context, the query
// string and then every bound argument, in that order.
type Conn struct {
	mock.Mock
}

var _ driver.Conn = (*Conn)(nil)

func (m *Conn) called(method string, ctx context.Context, query string, args []any) mock.Arguments {
	return m.MethodCalled(method, append([]any{ctx, query}, args...)...)
}

func (m *Conn) Contributors() []string {
	return m.Called().Get(0).([]string)
}

func (m *Conn) ServerVersion() (*driver.ServerVersion, error) {
	args := m.Called()
	v, _ := args.Get(0).(*driver.ServerVersion)
	return v, args.Error(1)
}

func (m *Conn) Select(ctx context.Context, _ any, query string, args ...any) error {
	return m.called("Select", ctx, query, args).Error(0)
}

func (m *Conn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	res := m.called("Query", ctx, query, args)
	rows, _ := res.Get(0).(driver.Rows)
	return rows, res.Error(1)
}

func (m *Conn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	row, _ := m.called("QueryRow", ctx, query, args).Get(0).(driver.Row)
	return row
}

func (m *Conn) Exec(ctx context.Context, query string, args ...any) error {
	return m.called("Exec", ctx, query, args).Error(0)
}

func (m *Conn) AsyncInsert(ctx context.Context, query string, wait bool, args ...any) error {
	return m.called("AsyncInsert", ctx, query, append([]any{wait}, args...)).Error(0)
}

func (m *Conn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	args := make([]any, len(opts))
	for i, opt := range opts {
		args[i] = opt
	}
	res := m.called("PrepareBatch", ctx, query, args)
	batch, _ := res.Get(0).(driver.Batch)
	return batch, res.Error(1)
}

func (m *Conn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Conn) Stats() driver.Stats {
	stats, _ := m.Called().Get(0).(driver.Stats)
	return stats
}

func (m *Conn) Close() error {
	return m.Called().Error(0)
}
