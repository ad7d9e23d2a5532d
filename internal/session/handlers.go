package session

import (
	"sync"

	"github.com/luciancaetano/kephascord"
)

// HandlerTable holds one handler per routed event type plus the
// name-keyed interaction handlers. Registering again replaces the previous
// handler.
type HandlerTable struct {
	mu             sync.RWMutex
	ready          kephascord.ReadyHandler
	messageCreate  kephascord.MessageHandler
	messageUpdate  kephascord.MessageHandler
	messageDelete  kephascord.MessageDeleteHandler
	reactionAdd    kephascord.ReactionHandler
	reactionRemove kephascord.ReactionHandler
	typing         kephascord.TypingHandler
	interactions   map[string]kephascord.InteractionHandler
}

// NewHandlerTable returns an empty table.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{
		interactions: make(map[string]kephascord.InteractionHandler),
	}
}

// SetReady registers the READY handler.
func (h *HandlerTable) SetReady(fn kephascord.ReadyHandler) {
	h.mu.Lock()
	h.ready = fn
	h.mu.Unlock()
}

// SetMessageCreate registers the MESSAGE_CREATE handler.
func (h *HandlerTable) SetMessageCreate(fn kephascord.MessageHandler) {
	h.mu.Lock()
	h.messageCreate = fn
	h.mu.Unlock()
}

// SetMessageUpdate registers the MESSAGE_UPDATE handler.
func (h *HandlerTable) SetMessageUpdate(fn kephascord.MessageHandler) {
	h.mu.Lock()
	h.messageUpdate = fn
	h.mu.Unlock()
}

// SetMessageDelete registers the MESSAGE_DELETE handler.
func (h *HandlerTable) SetMessageDelete(fn kephascord.MessageDeleteHandler) {
	h.mu.Lock()
	h.messageDelete = fn
	h.mu.Unlock()
}

// SetReactionAdd registers the MESSAGE_REACTION_ADD handler.
func (h *HandlerTable) SetReactionAdd(fn kephascord.ReactionHandler) {
	h.mu.Lock()
	h.reactionAdd = fn
	h.mu.Unlock()
}

// SetReactionRemove registers the MESSAGE_REACTION_REMOVE handler.
func (h *HandlerTable) SetReactionRemove(fn kephascord.ReactionHandler) {
	h.mu.Lock()
	h.reactionRemove = fn
	h.mu.Unlock()
}

// SetTyping registers the TYPING_START handler.
func (h *HandlerTable) SetTyping(fn kephascord.TypingHandler) {
	h.mu.Lock()
	h.typing = fn
	h.mu.Unlock()
}

// SetInteraction registers fn for the command or component name. A nil fn
// removes the registration.
func (h *HandlerTable) SetInteraction(name string, fn kephascord.InteractionHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fn == nil {
		delete(h.interactions, name)
		return
	}
	h.interactions[name] = fn
}

// Ready returns the READY handler, or nil.
func (h *HandlerTable) Ready() kephascord.ReadyHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Message returns the handler for MESSAGE_CREATE or MESSAGE_UPDATE.
func (h *HandlerTable) Message(event kephascord.EventType) kephascord.MessageHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if event == kephascord.EventMessageUpdate {
		return h.messageUpdate
	}
	return h.messageCreate
}

// MessageDelete returns the MESSAGE_DELETE handler, or nil.
func (h *HandlerTable) MessageDelete() kephascord.MessageDeleteHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.messageDelete
}

// Reaction returns the handler for MESSAGE_REACTION_ADD or MESSAGE_REACTION_REMOVE.
func (h *HandlerTable) Reaction(event kephascord.EventType) kephascord.ReactionHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if event == kephascord.EventMessageReactionRemove {
		return h.reactionRemove
	}
	return h.reactionAdd
}

// Typing returns the TYPING_START handler, or nil.
func (h *HandlerTable) Typing() kephascord.TypingHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.typing
}

// Interaction looks up the handler registered for a command or component name.
func (h *HandlerTable) Interaction(name string) (kephascord.InteractionHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.interactions[name]
	return fn, ok
}
