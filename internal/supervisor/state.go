package supervisor

// State is the lifecycle state of a supervised process.
type State int

const (
	Idle State = iota
	Starting
	Running
	Completed
	Failed
	TimedOut
	Stopped
)

var stateNames = map[State]string{
	Idle:      "idle",
	Starting:  "starting",
	Running:   "running",
	Completed: "completed",
	Failed:    "failed",
	TimedOut:  "timed_out",
	Stopped:   "stopped",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case Completed, Failed, TimedOut, Stopped:
		return true
	}
	return false
}

// MarshalText lets states appear by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
