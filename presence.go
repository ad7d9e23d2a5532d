package kephascord

// Status is the online status shown for the bot.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// Valid reports whether s is a status the gateway accepts.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDND, StatusInvisible, StatusOffline:
		return true
	}
	return false
}

// ActivityType selects how an activity is rendered ("Playing", "Watching"...).
type ActivityType int

const (
	ActivityGame      ActivityType = 0
	ActivityStreaming ActivityType = 1
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCustom    ActivityType = 4
	ActivityCompeting ActivityType = 5
)

// Activity is one entry of a presence's activity list.
type Activity struct {
	Name  string       `json:"name"`
	Type  ActivityType `json:"type"`
	URL   string       `json:"url,omitempty"`
	State string       `json:"state,omitempty"`
}

// PresenceUpdate is the payload of opcode 3 and the optional presence sent
// in identify.
type PresenceUpdate struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     Status     `json:"status"`
	AFK        bool       `json:"afk"`
}

// NewPresenceUpdate builds a presence with no idle-since timestamp.
func NewPresenceUpdate(status Status, activities []Activity) PresenceUpdate {
	if activities == nil {
		activities = []Activity{}
	}
	return PresenceUpdate{Status: status, Activities: activities}
}

// IdentifyProperties describes the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify is the payload of opcode 2.
type Identify struct {
	Token      string             `json:"token"`
	Properties IdentifyProperties `json:"properties"`
	Presence   *PresenceUpdate    `json:"presence,omitempty"`
	Intents    Intents            `json:"intents"`
}

// Hello is the payload of opcode 10.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}
