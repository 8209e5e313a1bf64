package mocks

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Client satisfies clickhouse.Client over any connection, usually a *Conn.
type Client struct {
	conn driver.Conn
}

// NewClient wraps conn without dialing anything.
func NewClient(conn driver.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Conn() driver.Conn {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
