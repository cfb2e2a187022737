package call

// State is the session lifecycle position. Transitions are monotonic forward
// except that Failed is reachable from any non-terminal state.
type State int

const (
	StateNew State = iota
	StateInitiating
	StateConnecting
	StateActive
	StateDisconnecting
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInitiating:
		return "initiating"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateTerminated || s == StateFailed }

// ExternalStatus is the coarse view exposed to pollers. All failure causes
// collapse to "failed"; Disconnecting is still "active" from the outside.
func (s State) ExternalStatus() string {
	switch s {
	case StateNew, StateInitiating:
		return "initiating"
	case StateConnecting:
		return "connecting"
	case StateActive, StateDisconnecting:
		return "active"
	case StateTerminated:
		return "completed"
	default:
		return "failed"
	}
}
