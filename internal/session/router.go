package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/internal/metrics"
	"github.com/luciancaetano/kephascord/internal/protocol"
)

// Option types that nest further options instead of carrying a value.
const (
	optionSubcommand      = 1
	optionSubcommandGroup = 2
)

type readyPayload struct {
	SessionID        string          `json:"session_id"`
	ResumeGatewayURL string          `json:"resume_gateway_url"`
	User             kephascord.User `json:"user"`
}

type authorPayload struct {
	Author *struct {
		ID string `json:"id"`
	} `json:"author"`
}

type interactionOption struct {
	Name    string              `json:"name"`
	Type    int                 `json:"type"`
	Value   any                 `json:"value"`
	Options []interactionOption `json:"options"`
}

type interactionPayload struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id"`
	Type          int    `json:"type"`
	Token         string `json:"token"`
	ChannelID     string `json:"channel_id"`
	GuildID       string `json:"guild_id"`
	Member        *struct {
		User *kephascord.User `json:"user"`
	} `json:"member"`
	User *kephascord.User `json:"user"`
	Data *struct {
		Name     string              `json:"name"`
		CustomID string              `json:"custom_id"`
		Options  []interactionOption `json:"options"`
	} `json:"data"`
}

// route handles one decoded frame. Control frames update protocol
// bookkeeping; dispatch frames go to the registered handlers. A non-nil
// error ends the connection.
func (s *Session) route(ctx context.Context, cs *connState, frame kephascord.Frame, log zerolog.Logger) error {
	switch frame.Op {
	case kephascord.OpDispatch:
		s.dispatch(cs, frame, log)
		return nil

	case kephascord.OpHeartbeatAck:
		cs.missedAcks.Store(0)
		if sent := cs.lastBeat.Load(); sent > 0 {
			latency := time.Since(time.Unix(0, sent))
			s.latency.Store(int64(latency))
			s.metrics.HeartbeatAcked(latency)
		}
		return nil

	case kephascord.OpHeartbeat:
		// The server may ask for a heartbeat out of schedule.
		if err := s.sendHeartbeat(ctx, cs); err != nil {
			log.Warn().Err(err).Msg("requested heartbeat failed")
		}
		return nil

	case kephascord.OpReconnect:
		log.Info().Msg("gateway requested reconnect")
		return kephascord.ErrReconnectRequested

	case kephascord.OpInvalidSession:
		var resumable bool
		if err := json.Unmarshal(frame.Data, &resumable); err != nil {
			log.Warn().Err(err).RawJSON("data", frame.Data).Msg("gateway invalidated the session")
			return kephascord.ErrInvalidSession
		}
		log.Warn().Bool("resumable", resumable).Msg("gateway invalidated the session")
		return kephascord.ErrInvalidSession

	case kephascord.OpHello:
		log.Debug().Msg("ignoring repeated hello")
		return nil

	default:
		log.Debug().Stringer("op", frame.Op).Msg("ignoring client-only opcode")
		return nil
	}
}

func (s *Session) dispatch(cs *connState, frame kephascord.Frame, log zerolog.Logger) {
	log = log.With().Str("event", string(frame.Type)).Logger()
	if frame.Sequence != nil {
		log = log.With().Int64("seq", *frame.Sequence).Logger()
	}

	switch frame.Type {
	case kephascord.EventReady:
		s.handleReady(cs, frame, log)
	case kephascord.EventMessageCreate, kephascord.EventMessageUpdate:
		s.handleMessage(frame, log)
	case kephascord.EventMessageDelete:
		var event kephascord.MessageDelete
		if !s.decodeEvent(frame, &event, log) {
			return
		}
		if fn := s.handlers.MessageDelete(); fn != nil {
			s.invoke(frame.Type, log, func() { fn(&event) })
			return
		}
		s.metrics.Drop(metrics.DropNoHandler)
	case kephascord.EventInteractionCreate:
		s.handleInteraction(frame, log)
	case kephascord.EventMessageReactionAdd, kephascord.EventMessageReactionRemove:
		fn := s.handlers.Reaction(frame.Type)
		if fn == nil {
			s.metrics.Drop(metrics.DropNoHandler)
			return
		}
		var reaction kephascord.Reaction
		if !s.decodeEvent(frame, &reaction, log) {
			return
		}
		s.invoke(frame.Type, log, func() { fn(&reaction) })
	case kephascord.EventTypingStart:
		fn := s.handlers.Typing()
		if fn == nil {
			s.metrics.Drop(metrics.DropNoHandler)
			return
		}
		var typing kephascord.TypingStart
		if !s.decodeEvent(frame, &typing, log) {
			return
		}
		s.invoke(frame.Type, log, func() { fn(&typing) })
	default:
		log.Debug().Msg("dropping unhandled event")
		s.metrics.Drop(metrics.DropUnknownEvent)
	}
}

// handleReady stores the identity before the ready handler runs.
func (s *Session) handleReady(cs *connState, frame kephascord.Frame, log zerolog.Logger) {
	var ready readyPayload
	if err := protocol.DecodeData(frame, &ready); err != nil || ready.User.ID == "" {
		log.Warn().Err(err).Msg("READY without user id")
		s.metrics.Drop(metrics.DropBadPayload)
		return
	}

	s.mu.Lock()
	if s.selfID == "" {
		s.selfID = ready.User.ID
	}
	s.mu.Unlock()
	cs.gatewaySessionID = ready.SessionID
	cs.resumeURL = ready.ResumeGatewayURL

	log.Info().
		Str("self_id", ready.User.ID).
		Str("gateway_session", ready.SessionID).
		Msg("session ready")

	if fn := s.handlers.Ready(); fn != nil {
		s.invoke(frame.Type, log, fn)
		return
	}
	s.metrics.Drop(metrics.DropNoHandler)
}

func (s *Session) handleMessage(frame kephascord.Frame, log zerolog.Logger) {
	var author authorPayload
	if err := protocol.DecodeData(frame, &author); err != nil {
		log.Warn().Err(err).Msg("dropping undecodable message event")
		s.metrics.Drop(metrics.DropBadPayload)
		return
	}

	// Without an author the message cannot be ours.
	if author.Author != nil && author.Author.ID != "" {
		if self := s.SelfID(); self != "" && author.Author.ID == self {
			s.metrics.Drop(metrics.DropSelfAuthored)
			return
		}
	}

	fn := s.handlers.Message(frame.Type)
	if fn == nil {
		s.metrics.Drop(metrics.DropNoHandler)
		return
	}

	msg, err := s.build(frame.Data)
	if err != nil {
		log.Warn().Err(err).Msg("message builder failed")
		s.metrics.Drop(metrics.DropBadPayload)
		return
	}
	s.invoke(frame.Type, log, func() { fn(msg) })
}

func (s *Session) handleInteraction(frame kephascord.Frame, log zerolog.Logger) {
	var payload interactionPayload
	if !s.decodeEvent(frame, &payload, log) {
		return
	}
	if payload.Data == nil {
		log.Debug().Msg("dropping interaction without data")
		s.metrics.Drop(metrics.DropBadPayload)
		return
	}

	name := payload.Data.Name
	if name == "" {
		name = payload.Data.CustomID
	}
	fn, ok := s.handlers.Interaction(name)
	if !ok {
		log.Debug().Err(kephascord.ErrHandlerLookupMiss).Str("name", name).Msg("dropping interaction")
		s.metrics.Drop(metrics.DropHandlerMiss)
		return
	}

	ic := &kephascord.InteractionContext{
		ID:            payload.ID,
		ApplicationID: payload.ApplicationID,
		Type:          payload.Type,
		Token:         payload.Token,
		ChannelID:     payload.ChannelID,
		GuildID:       payload.GuildID,
		Name:          name,
		Raw:           frame.Data,
	}
	switch {
	case payload.Member != nil && payload.Member.User != nil:
		ic.User = *payload.Member.User
	case payload.User != nil:
		ic.User = *payload.User
	}

	subcommand, options := resolveOptions(payload.Data.Options)
	ic.Subcommand = subcommand
	s.invoke(frame.Type, log, func() { fn(ic, options) })
}

// resolveOptions flattens subcommand and subcommand group nesting. It returns
// the invoked subcommand path ("" for plain commands) and the leaf options
// keyed by name.
func resolveOptions(opts []interactionOption) (string, map[string]any) {
	values := make(map[string]any, len(opts))
	var path string
	for len(opts) > 0 {
		first := opts[0]
		if first.Type != optionSubcommand && first.Type != optionSubcommandGroup {
			break
		}
		if path == "" {
			path = first.Name
		} else {
			path += " " + first.Name
		}
		opts = first.Options
	}
	for _, opt := range opts {
		values[opt.Name] = opt.Value
	}
	return path, values
}

func (s *Session) decodeEvent(frame kephascord.Frame, v any, log zerolog.Logger) bool {
	if err := protocol.DecodeData(frame, v); err != nil {
		log.Warn().Err(err).Msg("dropping undecodable event")
		s.metrics.Drop(metrics.DropBadPayload)
		return false
	}
	return true
}

// invoke runs a handler on the receive goroutine. A panicking handler is
// logged and does not end the session.
func (s *Session) invoke(event kephascord.EventType, log zerolog.Logger, fn func()) {
	s.metrics.Dispatch(event)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("event handler panicked")
		}
	}()
	fn()
}

// sendHeartbeat writes one heartbeat. It fails with ErrHeartbeatTimeout once
// MaxMissedAcks heartbeats in a row went unacknowledged.
func (s *Session) sendHeartbeat(ctx context.Context, cs *connState) error {
	if missed := cs.missedAcks.Load(); int(missed) >= s.cfg.MaxMissedAcks {
		return fmt.Errorf("%w: %d heartbeats in a row", kephascord.ErrHeartbeatTimeout, missed)
	}

	frame, err := kephascord.NewFrame(kephascord.OpHeartbeat, nil)
	if err != nil {
		return err
	}
	// Counted before the write so an ack racing the write is not lost.
	cs.missedAcks.Add(1)
	cs.lastBeat.Store(time.Now().UnixNano())
	if err := s.write(ctx, cs, frame); err != nil {
		return err
	}
	s.metrics.HeartbeatSent()
	return nil
}

// write encodes and sends a frame on cs without rate limiting.
func (s *Session) write(ctx context.Context, cs *connState, frame kephascord.Frame) error {
	if !cs.running.Load() {
		return kephascord.ErrSessionClosed
	}
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	if err := cs.transport.Send(ctx, data); err != nil {
		if !cs.running.Load() {
			return kephascord.ErrSessionClosed
		}
		return s.transportError("write", err)
	}
	return nil
}

// steadyConn returns the active connection if the session is in SteadyState.
func (s *Session) steadyConn() (*connState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != kephascord.StateSteady || s.active == nil || !s.active.running.Load() {
		return nil, false
	}
	return s.active, true
}

// SendRaw sends frame through the active connection, subject to the send
// rate limit.
func (s *Session) SendRaw(ctx context.Context, frame kephascord.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	cs, ok := s.steadyConn()
	if !ok {
		return kephascord.ErrSessionClosed
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send rate limit: %w", err)
		}
	}
	return s.write(ctx, cs, frame)
}

// SendPresenceUpdate sends an opcode 3 presence update.
func (s *Session) SendPresenceUpdate(ctx context.Context, status kephascord.Status, activities []kephascord.Activity) error {
	if !status.Valid() {
		return fmt.Errorf("invalid presence status %q", status)
	}
	frame, err := kephascord.NewFrame(kephascord.OpPresenceUpdate, kephascord.NewPresenceUpdate(status, activities))
	if err != nil {
		return err
	}
	return s.SendRaw(ctx, frame)
}
