// Package kephascord provides a client for a chat platform's real-time gateway.
//
// A Session owns one websocket connection to the gateway. It performs the
// hello/identify handshake, keeps the connection alive with heartbeats and turns
// inbound dispatch frames into typed callbacks. Applications can push presence
// updates and raw frames through the same connection.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/kephascord"
//	    "github.com/luciancaetano/kephascord/gateway"
//	)
//
//	cfg := gateway.NewConfig(token, kephascord.IntentsDefault|kephascord.IntentMessageContent)
//	session := gateway.New(cfg)
//
//	session.OnReady(func() {
//	    log.Printf("logged in as %s", session.SelfID())
//	})
//	session.OnMessageCreate(func(msg *kephascord.Message) {
//	    log.Printf("%s: %s", msg.Author.Username, msg.Content)
//	})
//	session.OnInteraction("ping", func(ic *kephascord.InteractionContext, options map[string]any) {
//	    log.Printf("ping from %s", ic.User.Username)
//	})
//
//	err := gateway.RunWithReconnect(ctx, session, nil)
//
// # Protocol Format
//
// Every frame is a JSON text message:
//
//	{"op": <opcode>, "d": <payload>, "s": <sequence>, "t": <event type>}
//
// "s" and "t" are only meaningful on dispatch frames (opcode 0). A frame that
// is not valid JSON, has no opcode, uses an opcode outside the vocabulary, or
// carries an event type on a non-dispatch frame is malformed. Malformed frames
// are logged and skipped; they never end a session.
//
// # Lifecycle
//
//	Connecting -> AwaitingHello -> Identifying -> Steady -> Closing -> Closed
//
// The first heartbeat is sent after a random delay within the interval
// announced by hello, then once per interval. Three heartbeats in a row without
// an acknowledgement end the session with ErrHeartbeatTimeout.
//
// Run returns when the connection ends. Reconnection is left to the caller:
// call Run again, or use gateway.RunWithReconnect, which stops retrying on
// authentication failures and non-recoverable close codes.
//
// # Handlers
//
// Each event type has one handler slot; registering again replaces it.
// Handlers run on the receive goroutine in the order events arrive, so a slow
// handler delays the next event. A panicking handler is logged and the session
// continues. Messages authored by the bot itself are never delivered.
//
// # Rate Limiting
//
// Application sends share a token bucket, 90 frames per minute with a burst of
// 20 by default. Heartbeats and identify bypass it.
//
//	cfg.RateLimitConfig = gateway.NoRateLimit()
//
// # Errors
//
// Sessions return sentinel errors (ErrSessionClosed, ErrAuthenticationRejected,
// ErrReconnectRequested, ErrInvalidSession, ErrHeartbeatTimeout, ...) and the
// typed errors *TransportError and *CloseError. Match them with errors.Is and
// errors.As.
package kephascord
