package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SocketEnv names the environment variable clients read the socket path
// from when none is given.
const SocketEnv = "WF_FILTERS_SOCKET"

// DefaultSocketPath returns $WF_FILTERS_SOCKET, or wf-filters.sock in
// $XDG_RUNTIME_DIR (the temp dir when unset).
func DefaultSocketPath() string {
	if p := os.Getenv(SocketEnv); p != "" {
		return p
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "wf-filters.sock")
}

// RemoteError is an error reply from the server.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Client sends requests over one connection. Calls are serialized.
type Client struct {
	conn      net.Conn
	mu        sync.Mutex
	connected bool
	timeout   time.Duration
	limit     uint32
}

// New creates an unconnected client.
func New() *Client {
	return &Client{timeout: DefaultRequestTimeout, limit: DefaultMaxMessageSize}
}

// Dial connects a new client to the socket at path.
func Dial(path string) (*Client, error) {
	c := New()
	if err := c.Connect(path); err != nil {
		return nil, err
	}
	return c, nil
}

// SetTimeout bounds each call. Zero disables the deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// Connect connects to the socket at path.
func (c *Client) Connect(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", path, err)
	}
	c.conn = conn
	c.connected = true
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	return err
}

// IsConnected returns connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Call sends method with data and waits for the reply. Error replies are
// returned as *RemoteError along with the reply. A failed write or read
// leaves the stream out of step, so the connection is closed and
// IsConnected reports false.
func (c *Client) Call(method string, data map[string]any) (Response, error) {
	params := Params{}
	for k, v := range data {
		if err := params.Set(k, v); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetDeadline(time.Time{})
	}
	if err := WriteMessage(c.conn, Request{Method: method, Data: params}); err != nil {
		c.drop()
		return nil, err
	}
	body, err := ReadMessage(c.conn, c.limit)
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("reading reply to %s: %w", method, err)
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding reply to %s: %w", method, err)
	}
	if msg := resp.Err(); msg != "" {
		return resp, &RemoteError{Method: method, Message: msg}
	}
	return resp, nil
}

func (c *Client) drop() {
	_ = c.conn.Close()
	c.conn = nil
	c.connected = false
}

// IsRemote reports whether err is an error reply rather than a transport
// failure.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
