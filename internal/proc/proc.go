package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Paintersrp/warden/internal/config"
	"github.com/Paintersrp/warden/internal/control"
	"github.com/Paintersrp/warden/internal/events"
	"github.com/Paintersrp/warden/internal/probe"
	"github.com/Paintersrp/warden/internal/statetable"
	"github.com/Paintersrp/warden/internal/worker"
)

const stopTimeout = 5 * time.Second

// Config describes one spawnable worker process.
type Config struct {
	Name    string
	Command []string
	Env     map[string]string
	Workdir string

	// Probe establishes readiness. With no probe the process acks
	// immediately after a successful spawn.
	Probe *config.ProbeSpec

	// Table is where the process publishes its own lifecycle record.
	Table statetable.Table
	// Control receives the early-termination sentinel when the process
	// exits before completing startup.
	Control control.Publisher
	// Events receives log lines and lifecycle notifications. May be nil.
	Events chan<- events.Event

	// Server marks the table record as a startup-quorum participant.
	Server bool
}

// Proc supervises one OS process incarnation at a time. Restart swaps
// incarnations in place; the manager-facing identity stays stable.
type Proc struct {
	cfg Config

	mu          sync.Mutex
	state       worker.State
	cmd         *exec.Cmd
	waitDone    chan struct{}
	waitErr     error
	restarts    int
	startedAt   time.Time
	watchCancel context.CancelFunc
	generation  int
}

// New constructs an idle process. Nothing is spawned until Start.
func New(cfg Config) *Proc {
	return &Proc{cfg: cfg, state: worker.Idle}
}

func (p *Proc) Name() string { return p.cfg.Name }

func (p *Proc) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pidLocked()
}

func (p *Proc) pidLocked() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

func (p *Proc) State() worker.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start spawns the process. It returns once spawning has been initiated;
// the ack is published later by the readiness watcher.
func (p *Proc) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && !p.exitedLocked() {
		return nil
	}
	p.setStateLocked(worker.Starting)
	return p.spawnLocked(nil)
}

func (p *Proc) spawnLocked(extraEnv []string) error {
	if len(p.cfg.Command) == 0 {
		return fmt.Errorf("worker %s requires a command", p.cfg.Name)
	}

	cmd := exec.Command(p.cfg.Command[0], p.cfg.Command[1:]...)
	if p.cfg.Workdir != "" {
		cmd.Dir = p.cfg.Workdir
	}

	env := os.Environ()
	for k, v := range p.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	env = append(env, extraEnv...)
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker %s stdout: %w", p.cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("worker %s stderr: %w", p.cfg.Name, err)
	}

	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker %s: %w", p.cfg.Name, err)
	}

	p.cmd = cmd
	p.generation++
	gen := p.generation
	waitDone := make(chan struct{})
	p.waitDone = waitDone
	p.startedAt = time.Now()
	p.setStateLocked(worker.Started)

	go p.streamLogs(stdout, events.SourceStdout)
	go p.streamLogs(stderr, events.SourceStderr)

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if p.generation == gen {
			p.waitErr = err
		}
		exitedEarly := p.state == worker.Starting || p.state == worker.Started
		p.mu.Unlock()
		close(waitDone)
		if exitedEarly && p.cfg.Control != nil {
			// Died before acking: abort the supervisor's startup
			// barrier instead of letting it run out the clock.
			_ = p.cfg.Control.Publish(control.MessageTerminateEarly)
		}
	}()

	if p.cfg.Probe != nil {
		prober, err := probe.New(p.cfg.Probe)
		if err != nil {
			_ = cmd.Process.Kill()
			return fmt.Errorf("worker %s probe: %w", p.cfg.Name, err)
		}
		watchCtx, cancel := context.WithCancel(context.Background())
		p.watchCancel = cancel
		transitions := probe.Watch(watchCtx, prober, p.cfg.Probe, nil)
		go p.observeReadiness(transitions, gen)
	} else {
		p.ackLocked()
	}

	return nil
}

func (p *Proc) observeReadiness(transitions <-chan probe.Event, gen int) {
	for ev := range transitions {
		switch ev.Status {
		case probe.StatusReady:
			p.mu.Lock()
			if p.generation == gen && p.state == worker.Started {
				p.ackLocked()
			}
			p.mu.Unlock()
		case probe.StatusUnready:
			events.Send(p.cfg.Events, p.cfg.Name, events.TypeError, "readiness probe failing", ev.Err)
		}
	}
}

// ackLocked publishes the acknowledgment that startup completed.
func (p *Proc) ackLocked() {
	p.setStateLocked(worker.Acked)
	events.Send(p.cfg.Events, p.cfg.Name, events.TypeAcked, "worker acknowledged startup", nil)
}

// Join blocks until the current incarnation has exited.
func (p *Proc) Join() {
	p.mu.Lock()
	done := p.waitDone
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waitDone == done {
		p.setStateLocked(worker.Joined)
	}
}

// Terminate requests a graceful stop of the process group without
// waiting for exit. Safe to call repeatedly and on a dead process.
func (p *Proc) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelWatchLocked()
	pid := p.pidLocked()
	alive := pid != 0 && !p.exitedLocked()
	p.setStateLocked(worker.Terminated)
	if !alive {
		return nil
	}
	if err := terminateGroup(pid); err != nil {
		return fmt.Errorf("terminate worker %s: %w", p.cfg.Name, err)
	}
	return nil
}

// Restart tears down the current incarnation, waits for it to exit
// (escalating to a group kill after a timeout) and spawns a fresh one.
// The restart context is forwarded to the new incarnation as WARDEN_*
// environment variables.
func (p *Proc) Restart(restartCtx map[string]string) error {
	p.mu.Lock()
	p.cancelWatchLocked()
	p.setStateLocked(worker.Restarting)
	pid := p.pidLocked()
	alive := pid != 0 && !p.exitedLocked()
	done := p.waitDone
	p.mu.Unlock()

	if alive {
		_ = terminateGroup(pid)
		select {
		case <-done:
		case <-time.After(stopTimeout):
			killGroup(pid)
			<-done
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarts++
	return p.spawnLocked(restartEnv(restartCtx))
}

func restartEnv(restartCtx map[string]string) []string {
	if len(restartCtx) == 0 {
		return nil
	}
	env := make([]string, 0, len(restartCtx))
	for k, v := range restartCtx {
		env = append(env, fmt.Sprintf("WARDEN_%s=%s", strings.ToUpper(k), v))
	}
	return env
}

// IsAlive reports whether the current incarnation is still running.
func (p *Proc) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil && !p.exitedLocked()
}

// ExitErr returns the exit error of the most recent incarnation.
func (p *Proc) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Restarts returns how many restarts this process has absorbed.
func (p *Proc) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

func (p *Proc) exitedLocked() bool {
	if p.waitDone == nil {
		return true
	}
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

func (p *Proc) cancelWatchLocked() {
	if p.watchCancel != nil {
		p.watchCancel()
		p.watchCancel = nil
	}
}

// setStateLocked records the transition locally and in the shared state
// table; the process is the sole writer of its own record.
func (p *Proc) setStateLocked(state worker.State) {
	p.state = state
	if p.cfg.Table == nil {
		return
	}
	p.cfg.Table.Put(p.cfg.Name, statetable.Record{
		Pid:       p.pidLocked(),
		State:     state.String(),
		Server:    p.cfg.Server,
		StartedAt: p.startedAt,
		Restarts:  p.restarts,
	})
}

func (p *Proc) streamLogs(r io.Reader, source string) {
	if p.cfg.Events == nil {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\n")
		if line == "" {
			continue
		}
		level := "info"
		if source == events.SourceStderr {
			level = "warn"
		}
		p.cfg.Events <- events.Event{
			Timestamp: time.Now(),
			Worker:    p.cfg.Name,
			Pid:       p.Pid(),
			Type:      events.TypeLog,
			Message:   line,
			Level:     level,
			Source:    source,
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		events.Send(p.cfg.Events, p.cfg.Name, events.TypeError, "log stream failed", err)
	}
}
