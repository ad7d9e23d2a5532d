package kephascord

// State is the lifecycle state of a session's connection.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingHello
	StateIdentifying
	StateSteady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateSteady:
		return "steady"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
