package session

// State is the turn lifecycle of a Core.
//
//	idle → sending → streaming → idle
//	           ↘        ↘
//	            cancelling → idle
//
// A turn settles back to idle in one step once the stream ends.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCancelling:
		return "cancelling"
	}
	return "unknown"
}

// Loading reports whether a completion request is in flight.
func (s State) Loading() bool { return s != StateIdle }

// ── Observer events ──────────────────────────────────────────────────────────

type EventType int

const (
	// EventAppended: Message was added to the end of the transcript.
	EventAppended EventType = iota

	// EventDelta: Delta was appended to the streaming message Message.ID.
	EventDelta

	// EventRemoved: the empty placeholder Message was removed.
	EventRemoved

	// EventCleared: the transcript was emptied.
	EventCleared

	// EventLoading: Loading changed.
	EventLoading
)

// Event describes one transcript or state change.
type Event struct {
	Type    EventType
	Message Message
	Delta   string
	Loading bool
}

// Observer receives events in mutation order, outside the core's lock.
// Events may be delivered on whichever goroutine is currently dispatching,
// so an observer should return quickly.
type Observer func(Event)
