package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"rsm-agent/internal/protocol"
)

var (
	ErrNotConnected = errors.New("not connected to the service")

	// ErrUnexpectedResponse means the service answered with a well-formed
	// envelope of the wrong concrete type: a protocol violation, not a value.
	ErrUnexpectedResponse = errors.New("unexpected response type")
)

// Client is the management application's side of the local channel. It holds
// at most one connection; callers own the connection lifecycle (Connect /
// Disconnect) and SendRequest never dials on their behalf.
type Client struct {
	dial func(timeout time.Duration) (net.Conn, error)

	// mu guards the connection handle only. Blocking I/O happens outside it
	// so a slow round trip does not stall Connected() or Disconnect().
	mu   sync.Mutex
	conn net.Conn

	// reqMu serializes round trips: the protocol is strictly
	// request/response, never pipelined.
	reqMu sync.Mutex
}

func NewClient() *Client {
	return &Client{dial: DialChannel}
}

// Connect is idempotent: when a connection is already up it reports true
// without re-dialing. An unreachable service is an ordinary condition for
// this transport, so failure is a false return, not an error.
func (c *Client) Connect(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return true
	}
	conn, err := c.dial(timeout)
	if err != nil {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Disconnect is safe to call at any time, connected or not.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// SendRequest performs one framed round trip. The timeout is a hard deadline
// over write+read, linked with the caller's context: either aborts pending
// I/O. An ErrorResponse from the service is returned as a *protocol.RemoteError,
// never as a successful value.
func (c *Client) SendRequest(ctx context.Context, req protocol.Message, timeout time.Duration) (protocol.Message, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	if req.Correlation() == "" {
		req.SetCorrelation(uuid.NewString())
	}
	body, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Deadline watchdog: when either the timeout or the caller's own
	// cancellation fires, slam the connection deadline to abort the blocked
	// write/read.
	watchdog := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-watchdog:
		}
	}()
	defer func() {
		close(watchdog)
		_ = conn.SetDeadline(time.Time{})
	}()

	resp, rtErr := roundTrip(conn, body)
	if rtErr != nil {
		// Framing state on the channel is unknown after a failed round trip;
		// drop the connection so the next request starts clean.
		c.dropConn(conn)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request aborted: %w", ctx.Err())
		}
		return nil, rtErr
	}

	if errResp, ok := resp.(*protocol.ErrorResponse); ok {
		return nil, errResp.AsError()
	}
	if resp.Correlation() != req.Correlation() {
		return nil, fmt.Errorf("%w: correlation id %q does not match request %q",
			ErrUnexpectedResponse, resp.Correlation(), req.Correlation())
	}
	return resp, nil
}

func roundTrip(conn net.Conn, body []byte) (protocol.Message, error) {
	if err := WriteFrame(conn, body); err != nil {
		return nil, err
	}
	respBody, err := ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	return protocol.Decode(respBody)
}

func (c *Client) dropConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Call is SendRequest with the response narrowed to the expected concrete
// type; a mismatch is an ErrUnexpectedResponse, never a silent cast.
func Call[T protocol.Message](ctx context.Context, c *Client, req protocol.Message, timeout time.Duration) (T, error) {
	var zero T
	resp, err := c.SendRequest(ctx, req, timeout)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %s", ErrUnexpectedResponse, resp.Kind())
	}
	return typed, nil
}
