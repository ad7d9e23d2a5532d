package kephascord

import (
	"encoding/json"
	"fmt"
)

// User is the part of a user object the session hands to handlers.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

// Message is a chat message delivered by MESSAGE_CREATE and MESSAGE_UPDATE.
//
// Raw holds the full event payload so richer models can be built from it.
type Message struct {
	ID              string          `json:"id"`
	ChannelID       string          `json:"channel_id"`
	GuildID         string          `json:"guild_id,omitempty"`
	Author          User            `json:"author"`
	Content         string          `json:"content"`
	Timestamp       string          `json:"timestamp,omitempty"`
	EditedTimestamp string          `json:"edited_timestamp,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// AuthorID returns the id of the message's author.
func (m *Message) AuthorID() string {
	return m.Author.ID
}

// MessageBuilder turns a message event payload into a Message. Sessions use
// DefaultMessageBuilder unless configured otherwise.
type MessageBuilder func(data json.RawMessage) (*Message, error)

// DefaultMessageBuilder decodes the fields of Message and keeps the payload
// in Raw.
func DefaultMessageBuilder(data json.RawMessage) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	msg.Raw = data
	return &msg, nil
}

// MessageDelete identifies a deleted message. Content is not available.
type MessageDelete struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
}

// Emoji identifies a custom or unicode emoji. Unicode emojis have no ID.
type Emoji struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Animated bool   `json:"animated,omitempty"`
}

// Reaction is delivered by MESSAGE_REACTION_ADD and MESSAGE_REACTION_REMOVE.
type Reaction struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Emoji     Emoji  `json:"emoji"`
}

// TypingStart is delivered when a user starts typing in a channel.
type TypingStart struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// InteractionContext describes an INTERACTION_CREATE routed to a registered
// command handler.
type InteractionContext struct {
	ID            string
	ApplicationID string
	Type          int
	Token         string
	ChannelID     string
	GuildID       string
	User          User

	// Name is the command name, or the custom id for component interactions.
	Name string
	// Subcommand is set when the command was invoked through a subcommand
	// (or "group subcommand" for grouped subcommands).
	Subcommand string

	Raw json.RawMessage
}

// Handler signatures accepted by Session's On* methods.
type (
	ReadyHandler         func()
	MessageHandler       func(msg *Message)
	MessageDeleteHandler func(event *MessageDelete)
	InteractionHandler   func(ic *InteractionContext, options map[string]any)
	ReactionHandler      func(reaction *Reaction)
	TypingHandler        func(typing *TypingStart)
)
