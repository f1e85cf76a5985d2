package eventbus

// Event is an event stream emitted by device sessions.
type Event uint

const (
	// StatusChanged carries a device.StatusEvent.
	StatusChanged Event = iota + 1
	// TransferProgress carries a device.ProgressEvent.
	TransferProgress
	// TaskCompleted carries a device.TaskEvent.
	TaskCompleted
)

var eventNames = map[Event]string{
	StatusChanged:    "status-changed",
	TransferProgress: "transfer-progress",
	TaskCompleted:    "task-completed",
}

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	_, ok := eventNames[e]
	return ok
}

// String returns the name of the event.
func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}

	return "unknown-event"
}

// SubscriberID is a subscription to an event stream.
// Events are received from C until Unsubscribe is called.
type SubscriberID struct {
	C <-chan any

	active bool
	unsub  func()
}

// Active reports whether the subscription is still attached to a publisher.
func (s *SubscriberID) Active() bool {
	return s.active
}

// Unsubscribe detaches the subscription. C is closed once the publisher
// has processed the request.
func (s *SubscriberID) Unsubscribe() {
	if !s.active {
		return
	}

	s.active = false
	if s.unsub != nil {
		s.unsub()
	}
}
