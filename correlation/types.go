package correlation

// ID identifies one in-flight request. ID 0 is reserved and never issued.
type ID uint32

// Record links a request ID to the host callback awaiting its completions.
type Record struct {
	Callback any
	ID       ID
}

// EventType identifies a record lifecycle notification.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventNotified
	EventFinished
	EventCancelled
	EventDrained
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventNotified:
		return "notified"
	case EventFinished:
		return "finished"
	case EventCancelled:
		return "cancelled"
	case EventDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// Event represents a record lifecycle event.
type Event struct {
	Record *Record
	ID     ID
	Type   EventType
}

// Observer receives notifications about record lifecycle events.
// Observers are called outside the table lock, after the change is visible.
type Observer interface {
	OnCorrelationEvent(Event)
}
