package worker

import (
	"context"
	"os"
	"sync"
)

// Routine is the entry point executed by a Local process.
type Routine func(ctx context.Context) error

// Local adapts an in-process routine to the Process contract. It backs
// durable auxiliary workers (such as the file watcher) that live inside
// the supervisor process rather than in a spawned child. Durable workers
// are never dispatched restarts, but Restart is implemented honestly as
// stop-then-start for completeness.
type Local struct {
	name string
	run  Routine

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewLocal constructs a Local process around the provided routine.
func NewLocal(name string, run Routine) *Local {
	return &Local{name: name, run: run, state: Idle}
}

func (l *Local) Pid() int { return os.Getpid() }

func (l *Local) Name() string { return l.name }

func (l *Local) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Local) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return nil
	}
	l.state = Starting
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.state = Started
	go func() {
		err := l.run(ctx)
		l.mu.Lock()
		l.runErr = err
		l.mu.Unlock()
		close(done)
	}()
	return nil
}

func (l *Local) Join() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
	l.mu.Lock()
	l.state = Joined
	l.mu.Unlock()
}

func (l *Local) Terminate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.state = Terminated
	return nil
}

func (l *Local) Restart(map[string]string) error {
	if err := l.Terminate(); err != nil {
		return err
	}
	l.Join()
	l.mu.Lock()
	l.state = Restarting
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()
	return l.Start()
}

func (l *Local) IsAlive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil || l.state != Started {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Err returns the error the routine exited with, if any.
func (l *Local) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runErr
}
