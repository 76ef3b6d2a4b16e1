// Package manager implements the worker supervisor: it spawns a fixed
// set of server processes, holds the system at a startup barrier until
// every one of them acknowledges readiness, dispatches live restarts
// from the control channel and drives graceful or forced teardown.
package manager

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	goruntime "runtime"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/teris-io/shortid"

	"github.com/Paintersrp/warden/internal/control"
	"github.com/Paintersrp/warden/internal/events"
	"github.com/Paintersrp/warden/internal/metrics"
	"github.com/Paintersrp/warden/internal/statetable"
	"github.com/Paintersrp/warden/internal/worker"
)

const (
	// MainIdent is the supervisor's own seed entry in the state table.
	// It carries no server flag and never counts toward the ack quorum.
	MainIdent = "Warden-Main"

	serverLabel = "Server"

	defaultTick      = 100 * time.Millisecond
	defaultThreshold = 300
)

var (
	// ErrNoWorkers is returned when construction is attempted with a
	// worker count below one.
	ErrNoWorkers = errors.New("cannot serve with no workers")

	// ErrServerKilled reports that the hard-kill escalation ran. The
	// hosting process must translate it into a distinct non-zero exit
	// status.
	ErrServerKilled = errors.New("server killed")
)

// Factory constructs the process backing a worker identity.
type Factory func(ident string) (worker.Process, error)

// Config carries the collaborators the manager orchestrates.
type Config struct {
	// Count is the number of transient server workers. Must be >= 1.
	Count int
	// Serve builds one server worker process per identity.
	Serve Factory
	// Publisher and Subscriber are the two halves of the control
	// channel. The manager republishes barrier-phase messages on
	// Publisher so they are not lost.
	Publisher  control.Publisher
	Subscriber control.Subscriber
	// Table is the shared state table workers publish readiness into.
	Table statetable.Table
	// Events receives lifecycle notifications. May be nil.
	Events chan<- events.Event
	// RunID tags the seed record for observability. May be empty.
	RunID string
}

// Manager owns the worker set for one server instance. It executes
// single-threaded in cooperative-polling style: every wait is a bounded
// poll, so the loops stay responsive to channel messages and signals.
type Manager struct {
	serverCount int
	transient   []*worker.Worker
	durable     []*worker.Worker

	publisher  control.Publisher
	subscriber control.Subscriber
	table      statetable.Table
	events     chan<- events.Event

	terminated bool

	// Barrier tuning, overridable in tests.
	tick      time.Duration
	threshold int

	// killFn delivers the unmaskable termination signal, injectable so
	// orchestration tests never signal real pids.
	killFn func(pid int) error

	signals chan os.Signal
}

// New constructs a manager, seeds its own identity into the state table,
// creates the transient server workers and installs handlers for the two
// standard termination signals. A zero worker count fails before any of
// those side effects.
func New(cfg Config) (*Manager, error) {
	if cfg.Count < 1 {
		return nil, fmt.Errorf("%w (count=%d)", ErrNoWorkers, cfg.Count)
	}
	if cfg.Serve == nil {
		return nil, errors.New("manager: server factory is required")
	}
	if cfg.Publisher == nil || cfg.Subscriber == nil {
		return nil, errors.New("manager: control channel is required")
	}
	if cfg.Table == nil {
		return nil, errors.New("manager: state table is required")
	}

	m := &Manager{
		serverCount: cfg.Count,
		publisher:   cfg.Publisher,
		subscriber:  cfg.Subscriber,
		table:       cfg.Table,
		events:      cfg.Events,
		tick:        defaultTick,
		threshold:   defaultThreshold,
		killFn:      kill,
	}

	m.table.Put(MainIdent, statetable.Record{Pid: os.Getpid(), RunID: cfg.RunID})

	for i := 0; i < cfg.Count; i++ {
		ident := fmt.Sprintf("%s-%d", serverLabel, i)
		if err := m.Manage(ident, cfg.Serve, true); err != nil {
			return nil, err
		}
	}

	m.signals = make(chan os.Signal, 1)
	signal.Notify(m.signals, os.Interrupt, syscall.SIGTERM)
	go m.watchSignals()

	return m, nil
}

// Manage registers one additional worker without starting it. Transient
// workers participate in restart dispatch; durable workers are long-lived
// auxiliaries (such as the file watcher) that restart dispatch never
// touches.
func (m *Manager) Manage(ident string, factory Factory, transient bool) error {
	proc, err := factory(ident)
	if err != nil {
		return fmt.Errorf("manage %s: %w", ident, err)
	}
	w := worker.New(ident, proc)
	if transient {
		m.transient = append(m.transient, w)
	} else {
		m.durable = append(m.durable, w)
	}
	return nil
}

// Run drives the full lifecycle: start, monitor (including the startup
// barrier), join, terminate. A kill escalation surfaces as
// ErrServerKilled and preempts the join and terminate steps.
func (m *Manager) Run() error {
	if err := m.Start(); err != nil {
		return err
	}
	if err := m.Monitor(); err != nil {
		return err
	}
	m.Join()
	m.Terminate()
	return nil
}

// Start spawns every worker process, transient then durable, in list
// order. Spawning is non-blocking per process; readiness is established
// by the ack barrier, not here.
func (m *Manager) Start() error {
	for _, p := range m.processes() {
		events.Send(m.events, p.Name(), events.TypeStarting, "starting worker", nil)
		if err := p.Start(); err != nil {
			return fmt.Errorf("start %s: %w", p.Name(), err)
		}
	}
	return nil
}

// WaitForAck is the startup barrier. It polls on a fixed tick until the
// ack quorum is reached, bounding total wait by the tick threshold so a
// worker that never comes up cannot hang the supervisor forever.
func (m *Manager) WaitForAck() error {
	started := time.Now()
	misses := 0
	diagnostic := fmt.Sprintf(
		"It seems that one or more of your workers failed to come online "+
			"in the allowed time. Warden is shutting down to avoid a "+
			"deadlock. The current threshold is %s. If this problem "+
			"persists, raise supervisor.ackThreshold or investigate "+
			"worker startup latency.",
		time.Duration(m.threshold)*m.tick,
	)

	for !m.allWorkersAcked() {
		ok, err := m.subscriber.Poll(m.tick)
		if err != nil {
			return fmt.Errorf("ack barrier poll: %w", err)
		}
		if ok {
			msg, err := m.subscriber.Recv()
			if err != nil {
				return fmt.Errorf("ack barrier recv: %w", err)
			}
			if msg != control.MessageTerminateEarly {
				// Not ours to consume yet: republish so the monitor
				// loop sees it once the barrier clears.
				_ = m.publisher.Publish(msg)
				continue
			}
			misses = m.threshold
			diagnostic = "One of your worker processes terminated before " +
				"startup was completed. Please solve any errors experienced " +
				"during startup, and make sure the server is able to start " +
				"with a single worker before switching back to multi-worker " +
				"mode."
		}
		misses++
		if misses > m.threshold {
			events.Send(m.events, MainIdent, events.TypeError,
				"Not all workers acknowledged a successful startup. Shutting down.\n\n"+diagnostic, nil)
			return m.Kill()
		}
	}

	metrics.SetWorkersReady(m.serverCount)
	metrics.ObserveAckWait(time.Since(started))
	events.Send(m.events, MainIdent, events.TypeReady,
		fmt.Sprintf("all %d workers acknowledged startup", m.serverCount), nil)
	return nil
}

// Monitor runs the startup barrier and then the command loop: empty
// message stops monitoring cleanly, the terminate sentinel runs a
// graceful shutdown first, and anything else is a restart order of the
// form "<names>[:<payload>]".
func (m *Manager) Monitor() error {
	if err := m.WaitForAck(); err != nil {
		return err
	}
	for {
		ok, err := m.subscriber.Poll(m.tick)
		if err != nil {
			// An interrupted wait is benign loop termination on Windows
			// and fatal everywhere else.
			if goruntime.GOOS == "windows" {
				return nil
			}
			return fmt.Errorf("monitor poll: %w", err)
		}
		if !ok {
			continue
		}
		msg, err := m.subscriber.Recv()
		if err != nil {
			return fmt.Errorf("monitor recv: %w", err)
		}
		if msg == "" {
			return nil
		}
		if msg == control.MessageTerminate {
			m.Shutdown()
			return nil
		}
		names, payload := parseCommand(msg)
		restartCtx := map[string]string{}
		if payload != "" {
			restartCtx["reloaded_files"] = payload
		}
		m.Restart(names, restartCtx)
	}
}

// parseCommand splits a restart order into worker names and opaque
// payload. Empty names or the all-processes sentinel address every
// transient worker.
func parseCommand(msg string) ([]string, string) {
	processes, payload, _ := strings.Cut(msg, ":")
	var names []string
	for _, name := range strings.Split(processes, ",") {
		name = strings.TrimSpace(name)
		if name == control.MessageAllProcesses {
			return nil, payload
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, payload
}

// Restart dispatches a restart to the transient workers matching the
// filter (all of them when the filter is empty), forwarding the restart
// context unchanged. Durable workers are never restarted by this path,
// which protects the watcher from restarting itself.
func (m *Manager) Restart(names []string, restartCtx map[string]string) {
	id, _ := shortid.Generate()
	for _, w := range m.transient {
		if len(names) > 0 && !slices.Contains(names, w.Name) {
			continue
		}
		for _, p := range w.Processes {
			m.sendRestartEvent(p, id)
			if err := p.Restart(restartCtx); err != nil {
				events.Send(m.events, p.Name(), events.TypeError, "restart failed", err)
				continue
			}
			metrics.IncWorkerRestart(w.Name)
		}
	}
}

func (m *Manager) sendRestartEvent(p worker.Process, restartID string) {
	if m.events == nil {
		return
	}
	m.events <- events.Event{
		Timestamp: time.Now(),
		Worker:    p.Name(),
		Pid:       p.Pid(),
		Type:      events.TypeRestarting,
		Message:   "restarting worker",
		Level:     "info",
		Source:    events.SourceSystem,
		RestartID: restartID,
	}
}

// Join blocks until every process has exited. The scan repeats whenever
// at least one join happened, so processes respawned by a concurrent
// restart are picked up; it terminates on the first pass with no joins.
func (m *Manager) Join() {
	for {
		progressed := false
		for _, p := range m.processes() {
			if p.State() < worker.Joined {
				p.Join()
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// Terminate issues a terminate request to every process exactly once
// across the manager's lifetime, regardless of how many times it is
// called. It never fails.
func (m *Manager) Terminate() {
	if !m.terminated {
		for _, p := range m.processes() {
			events.Send(m.events, p.Name(), events.TypeTerminating, "terminating worker", nil)
			_ = p.Terminate()
		}
	}
	m.terminated = true
}

// Shutdown terminates every currently-alive process without waiting for
// exit and without escalation.
func (m *Manager) Shutdown() {
	for _, p := range m.processes() {
		if p.IsAlive() {
			_ = p.Terminate()
		}
	}
}

// Kill is the hard-escalation path: it sends the unmaskable termination
// signal to every process by pid, best effort, then reports
// ErrServerKilled. Nothing in the run sequence executes afterwards.
func (m *Manager) Kill() error {
	for _, p := range m.processes() {
		events.Send(m.events, p.Name(), events.TypeKilling,
			fmt.Sprintf("killing %s [%d]", p.Name(), p.Pid()), nil)
		_ = m.killFn(p.Pid())
	}
	return ErrServerKilled
}

// Tune overrides the ack barrier poll tick and miss threshold. Zero
// values keep the defaults (100ms, 300 ticks).
func (m *Manager) Tune(tick time.Duration, threshold int) {
	if tick > 0 {
		m.tick = tick
	}
	if threshold > 0 {
		m.threshold = threshold
	}
}

// Quorum reports whether the ack quorum currently holds. Exposed for
// health reporting.
func (m *Manager) Quorum() bool {
	return m.allWorkersAcked()
}

// Close releases the signal subscription. It does not touch workers.
func (m *Manager) Close() {
	if m.signals != nil {
		signal.Stop(m.signals)
	}
}

// watchSignals runs in an ordinary goroutine, not an asynchronous signal
// handler context: Go delivers signals over the channel, so terminating
// processes here is safe. The empty publish wakes the monitor loop,
// which then exits cleanly into the join phase.
func (m *Manager) watchSignals() {
	for sig := range m.signals {
		events.Send(m.events, MainIdent, events.TypeSignal,
			fmt.Sprintf("received signal %s, shutting down", sig), nil)
		_ = m.publisher.Publish("")
		m.Shutdown()
	}
}

// Workers returns the transient workers followed by the durable ones.
func (m *Manager) Workers() []*worker.Worker {
	out := make([]*worker.Worker, 0, len(m.transient)+len(m.durable))
	out = append(out, m.transient...)
	return append(out, m.durable...)
}

func (m *Manager) processes() []worker.Process {
	var out []worker.Process
	for _, w := range m.Workers() {
		out = append(out, w.Processes...)
	}
	return out
}

// allWorkersAcked is the quorum predicate: every server-flagged record
// in the state table reports the acked state, and the number of flagged
// records equals the expected server count exactly. The count guard
// prevents false success while some workers have not even registered.
func (m *Manager) allWorkersAcked() bool {
	flagged := 0
	acked := 0
	for _, rec := range m.table.Snapshot() {
		if !rec.Server {
			continue
		}
		flagged++
		if rec.State == worker.Acked.String() {
			acked++
		}
	}
	return flagged == m.serverCount && acked == flagged
}
