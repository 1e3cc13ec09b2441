package transport

// State describes the connection lifecycle of the WhatsApp session.
type State int

const (
	// StateDisconnected is the initial state and the state after any
	// disconnect. The manager never reconnects on its own.
	StateDisconnected State = iota

	// StateAuthenticating means the session is connecting and may be
	// waiting for the pairing code to be scanned.
	StateAuthenticating

	// StateReady means the session is authenticated and can send.
	StateReady

	// StateAuthFailed means the device was logged out remotely. A new
	// pairing is required.
	StateAuthFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}
