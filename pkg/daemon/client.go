// Package daemon is the thin client side of agentctl's Unix-socket
// JSON-RPC protocol (internal/daemon/rpc): dial, send one
// newline-terminated request, read one newline-terminated response,
// repeat. The session, lock and fuse subcommands and `daemon status` go
// through this Client.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/agentctl/agentctl/errors"
)

// Client is a connection to the agentctl daemon's RPC socket. It is
// safe for concurrent use: calls are serialized over the single
// underlying connection by an internal mutex, matching the daemon's
// own "one request in, one response out per line" contract.
type Client struct {
	socketPath string
	timeout    time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int64
}

// New returns a Client bound to socketPath. The connection is
// established lazily on the first Call.
func New(socketPath string, timeout time.Duration) *Client {
	return &Client{socketPath: socketPath, timeout: timeout}
}

// wireRequest/wireResponse mirror internal/daemon/rpc.Request/Response
// without importing that package, so the CLI binary doesn't need to
// link the daemon's internal implementation.
type wireRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

// Call issues one RPC: method with params marshaled from req, and
// result unmarshaled from the response into result (a pointer, or nil
// to discard the result). ctx governs connect + round-trip.
func (c *Client) Call(ctx context.Context, method string, req interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnLocked(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to connect to daemon")
	}

	var params json.RawMessage
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		params = data
	}

	c.nextID++
	id := c.nextID
	line, err := json.Marshal(wireRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal request envelope: %w", err)
	}
	line = append(line, '\n')

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if _, err := c.conn.Write(line); err != nil {
		c.closeLocked()
		return fmt.Errorf("failed to write request: %w", err)
	}

	respLine, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("failed to read response: %w", err)
	}

	var resp wireResponse
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Error != nil {
		return errors.New(errors.ErrorCode(resp.Error.Code), resp.Error.Message)
	}

	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// IsRunning reports whether the daemon is accepting connections, with
// a short dedicated timeout independent of Call's ctx.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
