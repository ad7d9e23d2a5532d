package kephascord

import (
	"context"
	"time"
)

// Session is a single logical connection to the gateway.
//
// A Session owns at most one live connection at a time. Run performs the
// hello/identify handshake, then runs the heartbeat loop and the receive loop
// until the connection ends. Inbound dispatch events are routed to the
// handlers registered with the On* methods, strictly in arrival order.
//
// Example usage:
//
//	import "github.com/luciancaetano/kephascord/gateway"
//
//	cfg := gateway.NewConfig(token, kephascord.IntentsDefault|kephascord.IntentsMessages)
//	session := gateway.New(cfg)
//
//	session.OnReady(func() {
//	    log.Printf("ready as %s", session.SelfID())
//	})
//	session.OnMessageCreate(func(msg *kephascord.Message) {
//	    log.Printf("%s: %s", msg.Author.Username, msg.Content)
//	})
//
//	if err := session.Run(ctx); err != nil {
//	    log.Printf("session ended: %v", err)
//	}
type Session interface {
	// Run dials the gateway and blocks until the connection ends.
	//
	// Run returns nil when the session was closed through Close, ctx.Err()
	// when ctx was cancelled, and a terminal error otherwise: a *TransportError
	// for connection failures, ErrAuthenticationRejected when the token was
	// refused, ErrReconnectRequested or ErrInvalidSession when the server asked
	// the client to go away, ErrHeartbeatTimeout when acks stopped arriving.
	//
	// Every call builds fresh connection state, so a caller may invoke Run
	// again after it returns to reconnect. Calling Run while another Run is
	// active returns ErrAlreadyRunning.
	Run(ctx context.Context) error

	// Close ends the active connection and waits for Run to return or for
	// ctx to expire. Close is idempotent: once the session is Closed, further
	// calls return nil without touching the transport.
	Close(ctx context.Context) error

	// State reports the current lifecycle state.
	State() State

	// SelfID returns the bot's own user id learned from READY, or "" before it.
	SelfID() string

	// Sequence returns the last dispatch sequence number seen on the active
	// connection and whether one has been seen.
	Sequence() (int64, bool)

	// Latency returns the round trip of the last acknowledged heartbeat.
	Latency() time.Duration

	// SendPresenceUpdate sends an opcode 3 presence update.
	//
	// Returns ErrSessionClosed outside the SteadyState.
	SendPresenceUpdate(ctx context.Context, status Status, activities []Activity) error

	// SendRaw sends an arbitrary frame through the session's connection.
	//
	// Returns ErrSessionClosed outside the SteadyState.
	SendRaw(ctx context.Context, frame Frame) error

	// OnReady registers the handler fired after READY, once SelfID is known.
	OnReady(handler ReadyHandler)

	// OnMessageCreate registers the MESSAGE_CREATE handler. Messages authored
	// by the session's own user are never delivered.
	OnMessageCreate(handler MessageHandler)

	// OnMessageUpdate registers the MESSAGE_UPDATE handler, self-filtered like
	// OnMessageCreate.
	OnMessageUpdate(handler MessageHandler)

	// OnMessageDelete registers the MESSAGE_DELETE handler.
	OnMessageDelete(handler MessageDeleteHandler)

	// OnInteraction registers the handler for the application command or
	// component named name. Interactions whose name has no handler are dropped.
	OnInteraction(name string, handler InteractionHandler)

	// OnReactionAdd registers the MESSAGE_REACTION_ADD handler.
	OnReactionAdd(handler ReactionHandler)

	// OnReactionRemove registers the MESSAGE_REACTION_REMOVE handler.
	OnReactionRemove(handler ReactionHandler)

	// OnTyping registers the TYPING_START handler.
	OnTyping(handler TypingHandler)
}

// Transport is one duplex, message-framed connection to the gateway.
//
// Implementations must allow Send to be called from several goroutines at
// once (the heartbeat loop and application code both write) while a single
// goroutine calls Receive.
type Transport interface {
	// Send writes one text frame. It returns once the frame was written or
	// the write failed.
	Send(ctx context.Context, data []byte) error

	// Receive blocks until the next text frame arrives. After Close it must
	// return promptly with an error. A close frame from the server is
	// reported as a *CloseError.
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the connection with the given close code and reason.
	// Calling Close more than once is safe.
	Close(code int, reason string) error
}

// Dialer opens Transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}
