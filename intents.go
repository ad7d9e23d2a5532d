package kephascord

import (
	"fmt"
	"strings"
)

// Intents is the bitmask sent in identify to select which dispatch event
// categories the server delivers.
type Intents uint64

const (
	IntentGuilds                      Intents = 1 << 0
	IntentGuildMembers                Intents = 1 << 1
	IntentGuildModeration             Intents = 1 << 2
	IntentGuildExpressions            Intents = 1 << 3
	IntentGuildIntegrations           Intents = 1 << 4
	IntentGuildWebhooks               Intents = 1 << 5
	IntentGuildInvites                Intents = 1 << 6
	IntentGuildVoiceStates            Intents = 1 << 7
	IntentGuildPresences              Intents = 1 << 8
	IntentGuildMessages               Intents = 1 << 9
	IntentGuildMessageReactions       Intents = 1 << 10
	IntentGuildMessageTyping          Intents = 1 << 11
	IntentDirectMessages              Intents = 1 << 12
	IntentDirectMessageReactions      Intents = 1 << 13
	IntentDirectMessageTyping         Intents = 1 << 14
	IntentMessageContent              Intents = 1 << 15
	IntentGuildScheduledEvents        Intents = 1 << 16
	IntentAutoModerationConfiguration Intents = 1 << 20
	IntentAutoModerationExecution     Intents = 1 << 21
)

// Named capability groups.
const (
	IntentsAll = IntentGuilds | IntentGuildMembers | IntentGuildModeration | IntentGuildExpressions |
		IntentGuildIntegrations | IntentGuildWebhooks | IntentGuildInvites | IntentGuildVoiceStates |
		IntentGuildPresences | IntentGuildMessages | IntentGuildMessageReactions | IntentGuildMessageTyping |
		IntentDirectMessages | IntentDirectMessageReactions | IntentDirectMessageTyping | IntentMessageContent |
		IntentGuildScheduledEvents | IntentAutoModerationConfiguration | IntentAutoModerationExecution

	// IntentsPrivileged must be enabled for the application before the
	// server accepts them.
	IntentsPrivileged = IntentGuildMembers | IntentGuildPresences | IntentMessageContent

	// IntentsDefault is every intent that needs no approval.
	IntentsDefault = IntentsAll &^ IntentsPrivileged

	IntentsMessages  = IntentGuildMessages | IntentDirectMessages
	IntentsReactions = IntentGuildMessageReactions | IntentDirectMessageReactions
	IntentsTyping    = IntentGuildMessageTyping | IntentDirectMessageTyping
)

var intentNames = map[string]Intents{
	"default":            IntentsDefault,
	"all":                IntentsAll,
	"privileged":         IntentsPrivileged,
	"messages":           IntentsMessages,
	"reactions":          IntentsReactions,
	"typing":             IntentsTyping,
	"guilds":             IntentGuilds,
	"guild_members":      IntentGuildMembers,
	"guild_presences":    IntentGuildPresences,
	"guild_messages":     IntentGuildMessages,
	"direct_messages":    IntentDirectMessages,
	"message_content":    IntentMessageContent,
	"guild_voice_states": IntentGuildVoiceStates,
}

// Has reports whether every bit of other is set in i.
func (i Intents) Has(other Intents) bool {
	return i&other == other
}

// ParseIntents ORs together named intents or groups, e.g.
// "default,message_content".
func ParseIntents(names ...string) (Intents, error) {
	var out Intents
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			v, ok := intentNames[name]
			if !ok {
				return 0, fmt.Errorf("unknown intent %q", name)
			}
			out |= v
		}
	}
	return out, nil
}
