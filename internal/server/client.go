package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jmylchreest/deckd/internal/protocol"
)

// ErrUnexpectedReply is returned when the daemon answers with the wrong
// message type.
var ErrUnexpectedReply = errors.New("unexpected reply")

// Client talks to a running daemon.
type Client struct {
	path        string
	dialTimeout time.Duration
}

// NewClient creates a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{path: path, dialTimeout: 2 * time.Second}
}

func (c *Client) dial(ctx context.Context) (*net.UnixConn, error) {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn.(*net.UnixConn), nil
}

// Alive reports whether a daemon accepts connections.
func (c *Client) Alive(ctx context.Context) bool {
	conn, err := c.dial(ctx)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// send writes one message and half-closes the connection.
func (c *Client) send(ctx context.Context, msg any) (*net.UnixConn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := protocol.Encode(conn, msg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.CloseWrite(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to close write side: %w", err)
	}
	return conn, nil
}

// roundTrip sends msg and decodes the first non-probe reply. Closing the
// connection when ctx ends unblocks the read.
func (c *Client) roundTrip(ctx context.Context, msg any) (any, error) {
	conn, err := c.send(ctx, msg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	line, err := protocol.ReadLine(bufio.NewReaderSize(conn, protocol.MaxMessageSize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}
	return protocol.Decode(line)
}

// Request sends a permission request and waits for the decision.
func (c *Client) Request(ctx context.Context, req *protocol.PermissionRequest) (*protocol.PermissionResponse, error) {
	reply, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, ok := reply.(*protocol.PermissionResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedReply, reply)
	}
	return resp, nil
}

// Notify sends a status update without waiting.
func (c *Client) Notify(ctx context.Context, n *protocol.Notification) error {
	conn, err := c.send(ctx, n)
	if err != nil {
		return err
	}
	return conn.Close()
}

// StopHook tells the daemon an agent finished its turn.
func (c *Client) StopHook(ctx context.Context, pid int) error {
	conn, err := c.send(ctx, &protocol.Control{Type: protocol.TypeStopHook, ClientPID: pid})
	if err != nil {
		return err
	}
	return conn.Close()
}

// Stop asks the daemon to shut down.
func (c *Client) Stop(ctx context.Context) error {
	conn, err := c.send(ctx, &protocol.Control{Type: protocol.TypeStop})
	if err != nil {
		return err
	}
	return conn.Close()
}

// Status queries the daemon state.
func (c *Client) Status(ctx context.Context) (*protocol.StatusResponse, error) {
	reply, err := c.roundTrip(ctx, &protocol.Control{Type: protocol.TypeStatus})
	if err != nil {
		return nil, err
	}
	resp, ok := reply.(*protocol.StatusResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedReply, reply)
	}
	return resp, nil
}
