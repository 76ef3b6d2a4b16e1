package worker

// Process is the contract the manager consumes for a single OS-level
// worker process. Implementations live elsewhere (see internal/proc for
// the exec-backed one); the manager only orchestrates.
type Process interface {
	// Pid returns the operating-system pid of the current incarnation,
	// or 0 when nothing has been spawned yet.
	Pid() int

	// Name returns the process identity, derived from its worker's name.
	Name() string

	// State reports the current lifecycle stage.
	State() State

	// Start spawns the process. It must return once spawning has been
	// initiated; readiness is reported through the shared state table.
	Start() error

	// Join blocks until the current incarnation has exited.
	Join()

	// Terminate requests a graceful stop without waiting for exit.
	Terminate() error

	// Restart tears down the current incarnation and spawns a new one,
	// forwarding the restart context unchanged.
	Restart(restartCtx map[string]string) error

	// IsAlive reports whether the process is currently running.
	IsAlive() bool
}

// Worker is a named logical unit owning one or more processes that share
// an entry routine and restart semantics.
type Worker struct {
	Name      string
	Processes []Process
}

// New constructs a worker wrapping the provided processes.
func New(name string, procs ...Process) *Worker {
	return &Worker{Name: name, Processes: procs}
}
