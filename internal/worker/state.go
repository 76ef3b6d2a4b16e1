package worker

// State enumerates the lifecycle stages a worker process passes through.
// The set is closed and totally ordered: a process whose state is below
// Joined has not fully exited yet. State crosses the process boundary by
// name through the shared state table, so names must stay stable.
type State int

const (
	Idle State = iota
	Restarting
	Starting
	Started
	Acked
	Joined
	Terminated
)

var stateNames = [...]string{
	Idle:       "Idle",
	Restarting: "Restarting",
	Starting:   "Starting",
	Started:    "Started",
	Acked:      "Acked",
	Joined:     "Joined",
	Terminated: "Terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// ParseState resolves a state name read from the shared state table.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return Idle, false
}
