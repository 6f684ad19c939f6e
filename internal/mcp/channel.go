package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// levelTrace is below Debug, used for wire-level payload logging.
const levelTrace = slog.Level(-8)

// readBufferSize is the size of each read from the connection.
const readBufferSize = 32 << 10

// Channel owns one TCP connection to an MCP server and frames it as
// newline-delimited JSON. A background reader feeds a Decoder and
// delivers complete messages on Messages.
type Channel struct {
	conn   net.Conn
	addr   string
	logger *slog.Logger

	msgs   chan json.RawMessage
	err    error // terminal read error, valid once msgs is closed
	closed chan struct{}
	once   sync.Once
}

// Dial connects to the endpoint and starts the reader. Dial honours
// ctx for the connection attempt only.
func Dial(ctx context.Context, ep Endpoint, logger *slog.Logger) (*Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: ep.Addr(), Err: err}
	}

	return newChannel(conn, ep.Addr(), logger), nil
}

// newChannel wraps an established connection.
func newChannel(conn net.Conn, addr string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		conn:   conn,
		addr:   addr,
		logger: logger,
		msgs:   make(chan json.RawMessage),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Messages returns the stream of decoded messages. It is closed when the
// connection ends; Err then reports why.
func (c *Channel) Messages() <-chan json.RawMessage {
	return c.msgs
}

// Err returns the error that ended the read loop. It must only be
// called after Messages has been closed.
func (c *Channel) Err() error {
	return c.err
}

// Send marshals v and writes it as a single newline-terminated line.
func (c *Channel) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.logger.Log(context.Background(), levelTrace, "mcp send", "line", string(data))

	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return &TransportError{Op: "write", Addr: c.addr, Err: err}
	}
	return nil
}

// Close tears down the connection. It is safe to call more than once
// and from any goroutine.
func (c *Channel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// readLoop reads until the connection fails, the remote closes it, or
// a malformed line arrives. Partial lines stay in the decoder until
// their newline shows up.
func (c *Channel) readLoop() {
	defer close(c.msgs)

	var dec Decoder
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := c.conn.Read(buf)
		if n > 0 {
			msgs, decErr := dec.Feed(buf[:n])
			for _, m := range msgs {
				c.logger.Log(context.Background(), levelTrace, "mcp recv", "line", string(m))
				select {
				case c.msgs <- m:
				case <-c.closed:
					c.err = net.ErrClosed
					return
				}
			}
			if decErr != nil {
				c.err = decErr
				return
			}
		}
		if readErr != nil {
			switch {
			case errors.Is(readErr, io.EOF):
				c.err = &TransportError{Op: "read", Addr: c.addr, Err: io.ErrUnexpectedEOF}
			default:
				c.err = &TransportError{Op: "read", Addr: c.addr, Err: readErr}
			}
			if dec.Buffered() > 0 {
				c.logger.Debug("discarding partial line at end of stream", "bytes", dec.Buffered())
			}
			return
		}
	}
}
