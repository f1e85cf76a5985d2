package device

// Status describes the lifecycle state of a device session.
type Status int

const (
	// StatusNone is the state of a session that has not started yet.
	StatusNone Status = iota
	// StatusConnecting indicates that the transport link is being established.
	StatusConnecting
	// StatusAuthenticating indicates that the device is being identified and
	// the session is pairing or presenting a stored credential.
	StatusAuthenticating
	// StatusAuthFailed indicates that the device rejected pairing or the
	// stored credential. The session disconnects right after.
	StatusAuthFailed
	// StatusConnected indicates that queued operations may run.
	StatusConnected
	// StatusDisconnected is the terminal state of every session.
	StatusDisconnected
)

var statusNames = [...]string{
	StatusNone:           "none",
	StatusConnecting:     "connecting",
	StatusAuthenticating: "authenticating",
	StatusAuthFailed:     "authentication failed",
	StatusConnected:      "connected",
	StatusDisconnected:   "disconnected",
}

// String converts a Status to a string.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}

	return statusNames[s]
}

// Terminal reports whether no further transition follows s.
func (s Status) Terminal() bool {
	return s == StatusDisconnected
}

// CanTransition reports whether a session in state s may move to next.
// Transitions are monotonic in declaration order, except that any state may
// move to StatusDisconnected and StatusAuthFailed is never followed by
// StatusConnected.
func (s Status) CanTransition(next Status) bool {
	switch {
	case s == StatusDisconnected:
		return false
	case next == StatusDisconnected:
		return true
	case s == StatusAuthFailed:
		return false
	case s == StatusAuthenticating && next == StatusConnected:
		return true
	}

	return next == s+1
}
