package convo

// ConnectionState represents the current state of the bus connection.
type ConnectionState int

const (
	// StateDisconnected means the client is not connected.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the client is establishing a connection.
	StateConnecting

	// StateConnected means the client is connected and ready.
	StateConnected

	// StateFailed means the transport rejected the handshake or dropped the
	// connection; when auto-reconnect is enabled a redial is pending.
	StateFailed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateEvent represents a connection state change.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // Optional error that caused the state change
}

// SessionState tracks the room-transition state machine of the facade.
type SessionState int

const (
	// SessionIdle means no room is active.
	SessionIdle SessionState = iota

	// SessionLoading means a room switch is in flight: history is being
	// fetched and the new room is not yet subscribed.
	SessionLoading

	// SessionActive means a room is subscribed and its window is live.
	SessionActive
)

// String returns the string representation of a SessionState.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionLoading:
		return "loading"
	case SessionActive:
		return "active"
	default:
		return "unknown"
	}
}
