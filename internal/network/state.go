package network

// State is the lifecycle stage of a Connection. Transitions only move forward:
// Connecting → Running → ShuttingDown → Closed.
type State int32

const (
	StateConnecting   State = iota // accepted, loops not started
	StateRunning                   // receive, process and send loops active
	StateShuttingDown              // shutdown requested, loops draining
	StateClosed                    // socket released (terminal)
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateRunning:
		return "RUNNING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
