// Package client provides a thin API wrapper around cachefsd's wire
// protocol. It is explicitly out of the server's core scope: it owns one
// connection, sends one request at a time, and waits for that request's
// response(s) before sending the next. There is no connection pooling,
// retry, or request pipelining here.
package client

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/marmos91/cachefsd/internal/config"
	"github.com/marmos91/cachefsd/internal/wire"
)

// Client is a single connection to a cachefsd server.
type Client struct {
	cfg  *config.ClientConfig
	pid  int32
	mu   sync.Mutex
	conn *net.UnixConn
	r    *bufio.Reader
}

// New builds a Client from cfg. It does not connect until Connect is
// called.
func New(cfg *config.ClientConfig) *Client {
	return &Client{cfg: cfg, pid: int32(os.Getpid())}
}

// Connect dials the server's socket.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr, err := net.ResolveUnixAddr("unix", c.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("resolve socket path %q: %w", c.cfg.SocketPath, err)
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return fmt.Errorf("dial %q: %w", c.cfg.SocketPath, err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// EvictedFile is a payload the server ejected from the cache to admit a
// write or append (spec.md §4.3 step 4).
type EvictedFile struct {
	Pathname string
	Content  []byte
}

// send writes req over the connection, stamping PID and logging it when
// OpLog is set (mirrors the original's -p flag).
func (c *Client) send(req *wire.Request) error {
	if c.conn == nil {
		return fmt.Errorf("client: not connected")
	}
	req.PID = c.pid
	if c.cfg.OpLog {
		fmt.Printf("> %s %s\n", req.Cmd, req.Pathname)
	}
	if err := wire.WriteRequest(c.conn, req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *Client) readOne() (*wire.Response, error) {
	resp, err := wire.ReadResponse(c.r)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if c.cfg.OpLog {
		fmt.Printf("< %s %s\n", resp.Code, resp.Pathname)
	}
	return resp, nil
}

// singleRoundTrip sends req and reads the one response commands with no
// eviction side effect produce (open, close, read, lock, unlock, remove,
// stat).
func (c *Client) singleRoundTrip(req *wire.Request) (*wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(req); err != nil {
		return nil, err
	}
	resp, err := c.readOne()
	if err != nil {
		return nil, err
	}
	c.pace()
	return resp, nil
}

func (c *Client) pace() {
	if c.cfg.ReqTimeIntervalMs > 0 {
		time.Sleep(time.Duration(c.cfg.ReqTimeIntervalMs) * time.Millisecond)
	}
}

func errFromCode(code wire.Code) error {
	if code == wire.CodeOK {
		return nil
	}
	return &CodeError{Code: code}
}

// CodeError wraps a non-OK wire.Code returned by the server.
type CodeError struct {
	Code wire.Code
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("cachefsd: %s", e.Code)
}
