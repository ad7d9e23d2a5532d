package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/kephascord"
)

const (
	writeWait      = 10 * time.Second
	closeWait      = time.Second
	maxMessageSize = 8 * 1024 * 1024
	sendBufferSize = 64
)

// ErrConnectionClosed is returned by Send and Receive once the connection is closed.
var ErrConnectionClosed = errors.New("websocket connection is closed")

type outbound struct {
	data   []byte
	result chan error
}

// Client implements kephascord.Transport on a gorilla websocket connection.
//
// Writes go through a single write pump goroutine, so Send is safe for
// concurrent use. Receive must only be called from one goroutine.
type Client struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan outbound
	mu     sync.RWMutex
	closed bool
}

// NewClient wraps an established connection and starts its write pump.
func NewClient(conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		id:     uuid.New().String(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		sendCh: make(chan outbound, sendBufferSize),
	}

	go client.writePump()

	return client
}

// ID returns a unique identifier for the connection
func (c *Client) ID() string {
	return c.id
}

// Send queues a text frame and waits until the write pump wrote it
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}

	req := outbound{data: data, result: make(chan error, 1)}
	select {
	case c.sendCh <- req:
		c.mu.RUnlock()
	case <-ctx.Done():
		c.mu.RUnlock()
		return ctx.Err()
	case <-c.ctx.Done():
		c.mu.RUnlock()
		return ErrConnectionClosed
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		// The pump may have finished this write right before stopping.
		select {
		case err := <-req.result:
			return err
		default:
			return ErrConnectionClosed
		}
	}
}

// Receive blocks until the next message arrives.
// A close frame from the peer is returned as a *kephascord.CloseError.
func (c *Client) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return nil, &kephascord.CloseError{Code: closeErr.Code, Reason: closeErr.Text}
		}
		if !c.IsAlive() {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}
	return data, nil
}

// Close closes the connection with a close code and reason
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeWait))

	return c.conn.Close()
}

// IsAlive returns true if the connection is still open
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// writePump is the only goroutine writing data frames to the connection
func (c *Client) writePump() {
	for {
		select {
		case req := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.TextMessage, req.data)
			req.result <- err
			if err != nil {
				c.cancel()
				_ = c.conn.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Dialer opens gateway connections with gorilla's dialer.
type Dialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewDialer creates a Dialer sending the given User-Agent.
func NewDialer(userAgent string) *Dialer {
	header := http.Header{}
	if userAgent != "" {
		header.Set("User-Agent", userAgent)
	}
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
		},
		header: header,
	}
}

// Dial connects to url and returns the connection as a kephascord.Transport
func (d *Dialer) Dial(ctx context.Context, url string) (kephascord.Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return NewClient(conn), nil
}
