package mdquery

// RunState tracks the initial query of a session.
type RunState int

const (
	RunCreated RunState = iota
	RunRunning
	RunFinished
	RunStopped
)

func (s RunState) String() string {
	switch s {
	case RunCreated:
		return "created"
	case RunRunning:
		return "running"
	case RunFinished:
		return "finished"
	case RunStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// active reports whether the run still needs the native handle.
func (s RunState) active() bool {
	return s == RunRunning || s == RunFinished
}

// WatchState tracks the live update subscription of a session.
type WatchState int

const (
	WatchInactive WatchState = iota
	WatchWatching
	WatchStopped
)

func (s WatchState) String() string {
	switch s {
	case WatchInactive:
		return "inactive"
	case WatchWatching:
		return "watching"
	case WatchStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
