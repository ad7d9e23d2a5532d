package kephascord

import (
	"fmt"
	"strconv"
)

// GatewayVersion is the gateway protocol version this package speaks.
const GatewayVersion = 10

// GatewayURL returns the gateway endpoint for the given protocol version
// with JSON encoding selected.
func GatewayURL(version int) string {
	return fmt.Sprintf("wss://gateway.discord.gg/?v=%d&encoding=json", version)
}

// Opcode identifies the kind of a gateway frame.
type Opcode int

// Gateway opcodes. The vocabulary is closed: frames carrying any other value
// are malformed.
const (
	OpDispatch       Opcode = 0
	OpHeartbeat      Opcode = 1
	OpIdentify       Opcode = 2
	OpPresenceUpdate Opcode = 3
	OpResume         Opcode = 6
	OpReconnect      Opcode = 7
	OpInvalidSession Opcode = 9
	OpHello          Opcode = 10
	OpHeartbeatAck   Opcode = 11
)

var opcodeNames = map[Opcode]string{
	OpDispatch:       "dispatch",
	OpHeartbeat:      "heartbeat",
	OpIdentify:       "identify",
	OpPresenceUpdate: "presence_update",
	OpResume:         "resume",
	OpReconnect:      "reconnect",
	OpInvalidSession: "invalid_session",
	OpHello:          "hello",
	OpHeartbeatAck:   "heartbeat_ack",
}

// Valid reports whether o belongs to the gateway opcode vocabulary.
func (o Opcode) Valid() bool {
	_, ok := opcodeNames[o]
	return ok
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "opcode(" + strconv.Itoa(int(o)) + ")"
}

// EventType names the event carried by a dispatch frame.
type EventType string

// Dispatch event types routed by the session. Any other event type is
// accepted on the wire but dropped by the router.
const (
	EventReady                 EventType = "READY"
	EventMessageCreate         EventType = "MESSAGE_CREATE"
	EventMessageUpdate         EventType = "MESSAGE_UPDATE"
	EventMessageDelete         EventType = "MESSAGE_DELETE"
	EventInteractionCreate     EventType = "INTERACTION_CREATE"
	EventMessageReactionAdd    EventType = "MESSAGE_REACTION_ADD"
	EventMessageReactionRemove EventType = "MESSAGE_REACTION_REMOVE"
	EventTypingStart           EventType = "TYPING_START"
)

// Known reports whether e is one of the routed event types.
func (e EventType) Known() bool {
	switch e {
	case EventReady, EventMessageCreate, EventMessageUpdate, EventMessageDelete,
		EventInteractionCreate, EventMessageReactionAdd, EventMessageReactionRemove, EventTypingStart:
		return true
	}
	return false
}

// Close codes. CloseNormalClosure is the websocket code the client uses for a
// requested disconnect; the 4xxx codes are sent by the gateway.
const (
	CloseNormalClosure = 1000

	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSeq           = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

// IsRecoverableClose reports whether reconnecting after the close code can
// succeed without changing the client's configuration.
func IsRecoverableClose(code int) bool {
	switch code {
	case CloseAuthenticationFailed, CloseInvalidShard, CloseShardingRequired,
		CloseInvalidAPIVersion, CloseInvalidIntents, CloseDisallowedIntents:
		return false
	}
	return true
}
