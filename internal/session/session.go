package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/internal/logx"
	"github.com/luciancaetano/kephascord/internal/metrics"
	"github.com/luciancaetano/kephascord/internal/protocol"
)

const (
	libraryName          = "kephascord"
	defaultMaxMissedAcks = 3

	// zombieCloseCode is used when the server stopped acknowledging heartbeats.
	// Anything but 1000/1001 keeps the server-side session resumable.
	zombieCloseCode = 4000
)

// RateLimitConfig defines the token bucket applied to application sends
// (presence updates and raw frames). Heartbeats and identify bypass it.
type RateLimitConfig struct {
	// MessagesPerSecond defines how many frames may be sent per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default send rate limit.
// The gateway closes connections sending more than 120 frames per minute;
// 90 per minute plus a burst of 20 leaves room for heartbeats.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: rate.Every(time.Minute / 90),
		Burst:             20,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with send rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Config configures a Session.
type Config struct {
	// Token is the bot credential sent in identify.
	Token string
	// Intents selects the dispatch events the server sends.
	Intents kephascord.Intents
	// URL of the gateway. Defaults to kephascord.GatewayURL(kephascord.GatewayVersion).
	URL string
	// Properties describe the client in identify.
	Properties kephascord.IdentifyProperties
	// Presence is sent in identify when set.
	Presence *kephascord.PresenceUpdate
	// Dialer opens the transport. Required.
	Dialer kephascord.Dialer
	// RateLimitConfig limits application sends. Nil uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig
	// MessageBuilder builds messages for MESSAGE_CREATE/UPDATE. Nil uses
	// kephascord.DefaultMessageBuilder.
	MessageBuilder kephascord.MessageBuilder
	// Logger receives the session's logs. Nil uses the package logger.
	Logger *zerolog.Logger
	// Metrics registers the session collectors. Nil keeps them unexported.
	Metrics prometheus.Registerer
	// MaxMissedAcks is the number of consecutive unacknowledged heartbeats
	// after which the connection is considered dead. Defaults to 3.
	MaxMissedAcks int
}

// connState is the state of one physical connection. It is created by Run
// and dropped when Run returns.
type connState struct {
	id        string
	transport kephascord.Transport
	running   atomic.Bool
	interval  time.Duration
	heartbeat *heartbeatTask

	missedAcks     atomic.Int32
	lastBeat       atomic.Int64
	closeRequested atomic.Bool
	closeOnce      sync.Once
	done           chan struct{}
	cancelDial     context.CancelFunc // guarded by Session.mu

	// written by the receive loop only
	gatewaySessionID string
	resumeURL        string
}

func (cs *connState) closeTransport(code int, reason string) {
	cs.closeOnce.Do(func() {
		cs.running.Store(false)
		_ = cs.transport.Close(code, reason)
	})
}

// Session implements kephascord.Session.
type Session struct {
	cfg      Config
	handlers *HandlerTable
	limiter  *rate.Limiter
	metrics  *metrics.Collector
	log      zerolog.Logger
	build    kephascord.MessageBuilder
	jitter   func(time.Duration) time.Duration

	mu     sync.RWMutex
	state  kephascord.State
	active *connState
	selfID string

	sequence atomic.Int64
	latency  atomic.Int64
}

var _ kephascord.Session = (*Session)(nil)

// New creates a session. Nothing is dialed until Run.
func New(cfg Config) *Session {
	if cfg.URL == "" {
		cfg.URL = kephascord.GatewayURL(kephascord.GatewayVersion)
	}
	if cfg.Properties == (kephascord.IdentifyProperties{}) {
		cfg.Properties = kephascord.IdentifyProperties{OS: runtime.GOOS, Browser: libraryName, Device: libraryName}
	}
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	if cfg.MaxMissedAcks <= 0 {
		cfg.MaxMissedAcks = defaultMaxMissedAcks
	}

	var limiter *rate.Limiter
	if cfg.RateLimitConfig.Enabled {
		limiter = rate.NewLimiter(cfg.RateLimitConfig.MessagesPerSecond, cfg.RateLimitConfig.Burst)
	}

	logger := logx.Log
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	build := cfg.MessageBuilder
	if build == nil {
		build = kephascord.DefaultMessageBuilder
	}

	s := &Session{
		cfg:      cfg,
		handlers: NewHandlerTable(),
		limiter:  limiter,
		metrics:  metrics.New(cfg.Metrics),
		log:      logger.With().Str("component", "gateway").Logger(),
		build:    build,
		jitter:   randomJitter,
		state:    kephascord.StateClosed,
	}
	s.sequence.Store(-1)
	return s
}

// Run dials the gateway, performs the handshake and serves the connection
// until it ends.
func (s *Session) Run(ctx context.Context) error {
	if s.cfg.Dialer == nil {
		return errors.New("gateway session has no dialer")
	}

	cs, err := s.begin()
	if err != nil {
		return err
	}
	log := s.log.With().Str("session_id", cs.id).Logger()

	err = s.serve(ctx, cs, log)
	s.teardown(cs)

	switch {
	case cs.closeRequested.Load():
		log.Info().Msg("session closed")
		return nil
	case ctx.Err() != nil:
		log.Info().Err(ctx.Err()).Msg("session cancelled")
		return ctx.Err()
	}
	log.Error().Err(err).Msg("session ended")
	return err
}

func (s *Session) begin() (*connState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, kephascord.ErrAlreadyRunning
	}
	cs := &connState{
		id:   uuid.New().String(),
		done: make(chan struct{}),
	}
	s.active = cs
	s.selfID = ""
	s.sequence.Store(-1)
	s.setStateLocked(kephascord.StateConnecting)
	return cs, nil
}

// attach publishes the dialed transport. It reports false when Close was
// requested while dialing.
func (s *Session) attach(cs *connState, transport kephascord.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs.transport = transport
	if cs.closeRequested.Load() {
		return false
	}
	cs.running.Store(true)
	s.setStateLocked(kephascord.StateAwaitingHello)
	return true
}

func (s *Session) serve(ctx context.Context, cs *connState, log zerolog.Logger) error {
	dialCtx, cancelDial := context.WithCancel(ctx)
	defer cancelDial()
	s.mu.Lock()
	if cs.closeRequested.Load() {
		s.mu.Unlock()
		return nil
	}
	cs.cancelDial = cancelDial
	s.mu.Unlock()

	log.Debug().Str("url", s.cfg.URL).Msg("dialing gateway")
	transport, err := s.cfg.Dialer.Dial(dialCtx, s.cfg.URL)
	if err != nil {
		if cs.closeRequested.Load() {
			return nil
		}
		return &kephascord.TransportError{Op: "dial", Err: err}
	}
	if !s.attach(cs, transport) {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		cs.closeTransport(kephascord.CloseNormalClosure, "")
	})
	defer stop()

	interval, err := s.awaitHello(ctx, cs, log)
	if err != nil {
		return err
	}
	cs.interval = interval
	log.Debug().Dur("heartbeat_interval", interval).Msg("hello received")

	s.setState(kephascord.StateIdentifying)
	if err := s.identify(ctx, cs); err != nil {
		return err
	}

	if !s.transition(cs, kephascord.StateSteady) {
		return nil
	}
	cs.heartbeat = startHeartbeat(ctx, interval, s.jitter,
		func(ctx context.Context) error { return s.sendHeartbeat(ctx, cs) },
		func(err error) {
			log.Warn().Err(err).Msg("heartbeat failed")
			code := kephascord.CloseNormalClosure
			if errors.Is(err, kephascord.ErrHeartbeatTimeout) {
				code = zombieCloseCode
			}
			cs.closeTransport(code, "heartbeat failed")
		})

	return s.receiveLoop(ctx, cs, log)
}

// awaitHello reads until a well-formed hello arrives. Malformed frames and
// frames with other opcodes are logged and skipped.
func (s *Session) awaitHello(ctx context.Context, cs *connState, log zerolog.Logger) (time.Duration, error) {
	for {
		data, err := cs.transport.Receive(ctx)
		if err != nil {
			return 0, s.transportError("read", err)
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			s.metrics.Malformed()
			log.Warn().Err(err).Msg("skipping malformed frame")
			continue
		}
		s.metrics.FrameReceived(frame.Op)

		if frame.Op != kephascord.OpHello {
			log.Warn().Stringer("op", frame.Op).Msg("ignoring frame received before hello")
			continue
		}

		var hello kephascord.Hello
		if err := protocol.DecodeData(frame, &hello); err != nil {
			s.metrics.Malformed()
			log.Warn().Err(err).Msg("skipping malformed hello")
			continue
		}
		if hello.HeartbeatInterval <= 0 {
			s.metrics.Malformed()
			log.Warn().Int64("heartbeat_interval", hello.HeartbeatInterval).Msg("skipping hello without heartbeat interval")
			continue
		}
		return time.Duration(hello.HeartbeatInterval) * time.Millisecond, nil
	}
}

func (s *Session) identify(ctx context.Context, cs *connState) error {
	frame, err := kephascord.NewFrame(kephascord.OpIdentify, kephascord.Identify{
		Token:      s.cfg.Token,
		Properties: s.cfg.Properties,
		Presence:   s.cfg.Presence,
		Intents:    s.cfg.Intents,
	})
	if err != nil {
		return err
	}
	if err := s.write(ctx, cs, frame); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	return nil
}

// receiveLoop decodes and routes inbound frames in arrival order.
func (s *Session) receiveLoop(ctx context.Context, cs *connState, log zerolog.Logger) error {
	for {
		data, err := cs.transport.Receive(ctx)
		if err != nil {
			// A close frame from the gateway outranks a failed heartbeat write.
			var closeErr *kephascord.CloseError
			if errors.As(err, &closeErr) {
				return s.transportError("read", err)
			}
			if hbErr := cs.heartbeat.Err(); hbErr != nil {
				return hbErr
			}
			return s.transportError("read", err)
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			s.metrics.Malformed()
			log.Warn().Err(err).Msg("skipping malformed frame")
			continue
		}
		s.metrics.FrameReceived(frame.Op)

		if frame.IsDispatch() && frame.Sequence != nil {
			s.sequence.Store(*frame.Sequence)
		}

		if err := s.route(ctx, cs, frame, log); err != nil {
			return err
		}
	}
}

func (s *Session) teardown(cs *connState) {
	s.setState(kephascord.StateClosing)
	cs.running.Store(false)

	if cs.heartbeat != nil {
		cs.heartbeat.Stop()
	}

	s.mu.Lock()
	transport := cs.transport
	s.mu.Unlock()
	if transport != nil {
		cs.closeTransport(kephascord.CloseNormalClosure, "")
	}

	s.mu.Lock()
	s.active = nil
	s.setStateLocked(kephascord.StateClosed)
	s.mu.Unlock()

	close(cs.done)
}

// Close ends the active connection and waits for Run to return.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	cs := s.active
	if cs == nil {
		s.mu.Unlock()
		return nil
	}
	cs.closeRequested.Store(true)
	cs.running.Store(false)
	transport := cs.transport
	cancelDial := cs.cancelDial
	if s.state != kephascord.StateClosing {
		s.setStateLocked(kephascord.StateClosing)
	}
	s.mu.Unlock()

	if cancelDial != nil {
		cancelDial()
	}
	if transport != nil {
		cs.closeTransport(kephascord.CloseNormalClosure, "")
	}

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transportError classifies a read or write failure.
func (s *Session) transportError(op string, err error) error {
	var closeErr *kephascord.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == kephascord.CloseAuthenticationFailed {
		return fmt.Errorf("%w: %w", kephascord.ErrAuthenticationRejected, closeErr)
	}
	return &kephascord.TransportError{Op: op, Err: err}
}

func (s *Session) setState(state kephascord.State) {
	s.mu.Lock()
	s.setStateLocked(state)
	s.mu.Unlock()
}

func (s *Session) setStateLocked(state kephascord.State) {
	s.state = state
	s.metrics.SetState(state)
}

// transition moves to state unless Close already started tearing down cs.
func (s *Session) transition(cs *connState, state kephascord.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.closeRequested.Load() {
		return false
	}
	s.setStateLocked(state)
	return true
}

// State reports the current lifecycle state.
func (s *Session) State() kephascord.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SelfID returns the bot's user id from READY.
func (s *Session) SelfID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

// Sequence returns the last dispatch sequence number.
func (s *Session) Sequence() (int64, bool) {
	seq := s.sequence.Load()
	return seq, seq >= 0
}

// Latency returns the last heartbeat round trip.
func (s *Session) Latency() time.Duration {
	return time.Duration(s.latency.Load())
}

func (s *Session) OnReady(handler kephascord.ReadyHandler) { s.handlers.SetReady(handler) }

func (s *Session) OnMessageCreate(handler kephascord.MessageHandler) {
	s.handlers.SetMessageCreate(handler)
}

func (s *Session) OnMessageUpdate(handler kephascord.MessageHandler) {
	s.handlers.SetMessageUpdate(handler)
}

func (s *Session) OnMessageDelete(handler kephascord.MessageDeleteHandler) {
	s.handlers.SetMessageDelete(handler)
}

func (s *Session) OnInteraction(name string, handler kephascord.InteractionHandler) {
	s.handlers.SetInteraction(name, handler)
}

func (s *Session) OnReactionAdd(handler kephascord.ReactionHandler) {
	s.handlers.SetReactionAdd(handler)
}

func (s *Session) OnReactionRemove(handler kephascord.ReactionHandler) {
	s.handlers.SetReactionRemove(handler)
}

func (s *Session) OnTyping(handler kephascord.TypingHandler) { s.handlers.SetTyping(handler) }
