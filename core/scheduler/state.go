package scheduler

// State is the phase of a rolling-horizon run.
type State int32

const (
	StateInitializing State = iota
	StateWindowSolving
	StateExecuting
	StateAdvancing
	StateTerminated
	// StateFatal is absorbing: the run aborted on a solver failure.
	StateFatal
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateWindowSolving:
		return "window_solving"
	case StateExecuting:
		return "executing"
	case StateAdvancing:
		return "advancing"
	case StateTerminated:
		return "terminated"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
