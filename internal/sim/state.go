package sim

// RunState is the lifecycle state of a simulation run.
type RunState int

const (
	StateRunning RunState = iota
	StatePaused
	StateFinished
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}
