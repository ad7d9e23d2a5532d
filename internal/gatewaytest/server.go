// Package gatewaytest runs an in-process gateway server speaking the
// hello/identify/heartbeat protocol, for tests that need a real websocket peer.
package gatewaytest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/internal/protocol"
)

// HandlerFn handles a frame received from a connected client.
type HandlerFn = func(conn *Conn, frame kephascord.Frame)

// ServerConfig controls the scripted behavior of the fake gateway.
type ServerConfig struct {
	// Token expected in identify. Any other token is closed with 4004.
	Token string
	// SelfID is the user id announced in READY.
	SelfID string
	// HeartbeatInterval announced in hello.
	HeartbeatInterval time.Duration
	// DisableAutoAck stops the server from answering heartbeats.
	DisableAutoAck bool
	// DisableReady stops the server from sending READY after identify.
	DisableReady bool
	// SkipHello stops the server from sending hello on connect.
	SkipHello bool
	// OnConnect is called after the upgrade, before hello is sent.
	OnConnect func(conn *Conn)
}

// Server is a fake gateway.
type Server struct {
	cfg      ServerConfig
	listener net.Listener
	server   *http.Server
	conns    sync.Map // map[string]*Conn
	handlers sync.Map // map[kephascord.Opcode]HandlerFn
	connCh   chan *Conn

	mu       sync.RWMutex
	running  bool
	upgrader websocket.Upgrader
}

// NewServer creates a fake gateway. Call Start to begin listening.
func NewServer(cfg ServerConfig) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Minute
	}
	if cfg.SelfID == "" {
		cfg.SelfID = "1"
	}
	return &Server{
		cfg:    cfg,
		connCh: make(chan *Conn, 16),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start listens on a random loopback port.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("gateway test server already running")
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	s.server = &http.Server{Handler: mux}
	s.running = true

	go func() {
		_ = s.server.Serve(listener)
	}()
	return nil
}

// Stop closes every connection and the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.conns.Range(func(key, value interface{}) bool {
		if conn, ok := value.(*Conn); ok {
			_ = conn.CloseWithCode(websocket.CloseGoingAway, "server stopping")
		}
		return true
	})
	return s.server.Shutdown(ctx)
}

// URL returns the websocket URL clients should dial.
func (s *Server) URL() string {
	return fmt.Sprintf("ws://%s/?v=%d&encoding=json", s.listener.Addr().String(), kephascord.GatewayVersion)
}

// RegisterHandler registers a handler for frames with the given opcode.
// Handlers run on the connection's read goroutine after the built-in behavior.
func (s *Server) RegisterHandler(op kephascord.Opcode, handler HandlerFn) {
	s.handlers.Store(op, handler)
}

// WaitConn waits for the next client connection.
func (s *Server) WaitConn(timeout time.Duration) (*Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for a gateway connection")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &Conn{
		id:       uuid.New().String(),
		ws:       ws,
		received: make(chan kephascord.Frame, 256),
	}
	s.conns.Store(conn.id, conn)

	go s.handleConn(conn)
}

func (s *Server) handleConn(conn *Conn) {
	defer func() {
		s.conns.Delete(conn.id)
		_ = conn.ws.Close()
		close(conn.received)
	}()

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(conn)
	}

	select {
	case s.connCh <- conn:
	default:
	}

	if !s.cfg.SkipHello {
		if err := conn.Send(kephascord.OpHello, kephascord.Hello{HeartbeatInterval: s.cfg.HeartbeatInterval.Milliseconds()}); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			_ = conn.CloseWithCode(kephascord.CloseDecodeError, "decode error")
			return
		}

		conn.record(frame)
		s.handleFrame(conn, frame)
	}
}

func (s *Server) handleFrame(conn *Conn, frame kephascord.Frame) {
	switch frame.Op {
	case kephascord.OpIdentify:
		var identify kephascord.Identify
		if err := protocol.DecodeData(frame, &identify); err != nil || identify.Token != s.cfg.Token {
			_ = conn.CloseWithCode(kephascord.CloseAuthenticationFailed, "Authentication failed.")
			return
		}
		if !s.cfg.DisableReady {
			_ = conn.Dispatch(kephascord.EventReady, map[string]any{
				"v":                  kephascord.GatewayVersion,
				"session_id":         conn.id,
				"resume_gateway_url": s.URL(),
				"user":               map[string]any{"id": s.cfg.SelfID, "username": "kephascord", "bot": true},
			})
		}
	case kephascord.OpHeartbeat:
		if !s.cfg.DisableAutoAck {
			_ = conn.Send(kephascord.OpHeartbeatAck, nil)
		}
	}

	if handler, ok := s.handlers.Load(frame.Op); ok {
		if handlerFunc, ok := handler.(HandlerFn); ok {
			handlerFunc(conn, frame)
		}
	}
}

// Conn is one client connection accepted by the fake gateway.
type Conn struct {
	id       string
	ws       *websocket.Conn
	writeMu  sync.Mutex
	seq      atomic.Int64
	received chan kephascord.Frame

	framesMu sync.Mutex
	frames   []kephascord.Frame
}

// ID returns the connection's session id, also announced in READY.
func (c *Conn) ID() string {
	return c.id
}

// Send writes a control frame to the client.
func (c *Conn) Send(op kephascord.Opcode, data any) error {
	frame, err := kephascord.NewFrame(op, data)
	if err != nil {
		return err
	}
	return c.WriteFrame(frame)
}

// Dispatch writes a dispatch frame with the next sequence number.
func (c *Conn) Dispatch(eventType kephascord.EventType, data any) error {
	frame, err := kephascord.NewDispatchFrame(c.seq.Add(1), eventType, data)
	if err != nil {
		return err
	}
	return c.WriteFrame(frame)
}

// WriteFrame encodes and writes any frame.
func (c *Conn) WriteFrame(frame kephascord.Frame) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	return c.WriteText(data)
}

// WriteText writes a raw text message, well-formed or not.
func (c *Conn) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// CloseWithCode sends a close frame and closes the connection.
func (c *Conn) CloseWithCode(code int, reason string) error {
	message := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	return c.ws.Close()
}

// Frames returns a copy of every frame received so far.
func (c *Conn) Frames() []kephascord.Frame {
	c.framesMu.Lock()
	defer c.framesMu.Unlock()
	out := make([]kephascord.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// WaitFrame waits for the next received frame with the given opcode.
func (c *Conn) WaitFrame(op kephascord.Opcode, timeout time.Duration) (kephascord.Frame, error) {
	deadline := time.After(timeout)
	for {
		select {
		case frame, ok := <-c.received:
			if !ok {
				return kephascord.Frame{}, errors.New("connection closed")
			}
			if frame.Op == op {
				return frame, nil
			}
		case <-deadline:
			return kephascord.Frame{}, fmt.Errorf("timed out waiting for %s frame", op)
		}
	}
}

func (c *Conn) record(frame kephascord.Frame) {
	c.framesMu.Lock()
	c.frames = append(c.frames, frame)
	c.framesMu.Unlock()

	select {
	case c.received <- frame:
	default:
	}
}
