// Package client connects to the binwatch tap stream.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/wire"
)

// ErrClientClosed is returned by Recv after Close.
var ErrClientClosed = errors.New("client is closed")

// Config holds client configuration.
type Config struct {
	Addr           string
	ConnectTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           config.DefaultTapListenAddress,
		ConnectTimeout: 10 * time.Second,
	}
}

// Client receives broadcast messages from a tap server.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *wire.Reader
	closed bool
}

// Dial connects to the tap server.
func Dial(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}

	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}

	return &Client{conn: conn, reader: wire.NewReader(conn)}, nil
}

// Recv blocks until the next message arrives.
func (c *Client) Recv() (event.Message, error) {
	msg, err := c.reader.Read()
	if err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return event.Message{}, ErrClientClosed
		}
		return event.Message{}, err
	}
	return msg, nil
}

// Tail calls fn for every message until ctx is done or the server closes
// the stream. A clean end of stream returns nil.
func (c *Client) Tail(ctx context.Context, fn func(event.Message)) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		msg, err := c.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fn(msg)
	}
}

// Close closes the connection. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
