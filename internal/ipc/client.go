package ipc

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a synchronous control-socket client. Safe for concurrent use;
// requests are serialized over one connection.
type Client struct {
	socketPath string
	timeout    time.Duration

	mu        sync.Mutex
	conn      net.Conn
	requestID uint32
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// SetTimeout changes the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// Connect dials the daemon. Request methods connect lazily, so calling this
// is only needed to probe availability.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := dial(c.socketPath)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.socketPath, err)
	}
	c.conn = conn
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// roundTrip sends one request and reads its response.
func (c *Client) roundTrip(msgType MessageType, payload any) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	c.requestID++
	req, err := Encode(msgType, c.requestID, payload)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	_ = c.conn.SetDeadline(deadline)
	if err := req.Write(c.conn); err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := ReadMessage(c.conn)
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Header.RequestID != c.requestID {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("response id %d does not match request %d", resp.Header.RequestID, c.requestID)
	}
	if resp.Header.Type == MsgError {
		var e ErrorResponse
		if err := Decode(resp, &e); err != nil {
			return nil, fmt.Errorf("daemon error (undecodable): %w", err)
		}
		return nil, fmt.Errorf("daemon error %d: %s", e.Code, e.Message)
	}
	return resp, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	resp, err := c.roundTrip(MsgPing, nil)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response type %#04x", uint16(resp.Header.Type))
	}
	return nil
}

// Status fetches the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.roundTrip(MsgStatusRequest, nil)
	if err != nil {
		return nil, err
	}
	var out StatusResponse
	if err := Decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State fetches the engine's shared-state snapshot.
func (c *Client) State() (*StateResponse, error) {
	resp, err := c.roundTrip(MsgStateRequest, nil)
	if err != nil {
		return nil, err
	}
	var out StateResponse
	if err := Decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Devices fetches the known device list.
func (c *Client) Devices() (*DevicesResponse, error) {
	resp, err := c.roundTrip(MsgDevicesRequest, nil)
	if err != nil {
		return nil, err
	}
	var out DevicesResponse
	if err := Decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reload asks the daemon to recompile and swap its profile.
func (c *Client) Reload(path string) (*ReloadResponse, error) {
	resp, err := c.roundTrip(MsgReloadRequest, &ReloadRequest{Path: path})
	if err != nil {
		return nil, err
	}
	var out ReloadResponse
	if err := Decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Simulate runs an event script in the daemon.
func (c *Client) Simulate(config, script string) (*SimulateResponse, error) {
	resp, err := c.roundTrip(MsgSimulateRequest, &SimulateRequest{Config: config, Script: script})
	if err != nil {
		return nil, err
	}
	var out SimulateResponse
	if err := Decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Shutdown asks the daemon to exit gracefully.
func (c *Client) Shutdown() error {
	_, err := c.roundTrip(MsgShutdown, nil)
	return err
}
