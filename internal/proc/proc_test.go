package proc

import (
	stdruntime "runtime"
	"testing"
	"time"

	"github.com/Paintersrp/warden/internal/config"
	"github.com/Paintersrp/warden/internal/control"
	"github.com/Paintersrp/warden/internal/events"
	"github.com/Paintersrp/warden/internal/statetable"
	"github.com/Paintersrp/warden/internal/worker"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("process runtime tests skipped on windows")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartAcksImmediatelyWithoutProbe(t *testing.T) {
	skipOnWindows(t)

	table := statetable.NewMemory()
	p := New(Config{
		Name:    "Server-0",
		Command: []string{"/bin/sh", "-c", "sleep 30"},
		Table:   table,
		Server:  true,
	})
	t.Cleanup(func() {
		p.Terminate()
		p.Join()
	})

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.State() != worker.Acked {
		t.Fatalf("state = %v, want Acked", p.State())
	}
	if !p.IsAlive() {
		t.Fatal("process not alive after start")
	}
	if p.Pid() == 0 {
		t.Fatal("pid not recorded")
	}

	rec, ok := table.Get("Server-0")
	if !ok {
		t.Fatal("no state table record after start")
	}
	if rec.State != worker.Acked.String() || !rec.Server || rec.Pid != p.Pid() {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestStartAcksOnProbeSuccess(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	table := statetable.NewMemory()
	p := New(Config{
		Name:    "Server-0",
		Command: []string{"/bin/sh", "-c", "sleep 0.2; touch ready; sleep 30"},
		Workdir: dir,
		Probe: &config.ProbeSpec{
			Interval: config.Duration{Duration: 20 * time.Millisecond},
			Command: &config.CommandProbeSpec{
				Command: []string{"/bin/sh", "-c", "test -f " + dir + "/ready"},
			},
		},
		Table:  table,
		Server: true,
	})
	t.Cleanup(func() {
		p.Terminate()
		p.Join()
	})

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.State() == worker.Acked {
		t.Fatal("acked before the probe could have succeeded")
	}

	waitFor(t, "ack", func() bool { return p.State() == worker.Acked })

	rec, _ := table.Get("Server-0")
	if rec.State != worker.Acked.String() {
		t.Fatalf("table record = %+v", rec)
	}
}

func TestEarlyExitPublishesSentinel(t *testing.T) {
	skipOnWindows(t)

	ch := control.NewChannel()
	p := New(Config{
		Name:    "Server-0",
		Command: []string{"/bin/sh", "-c", "exit 7"},
		Probe: &config.ProbeSpec{
			Interval: config.Duration{Duration: 20 * time.Millisecond},
			TCP:      &config.TCPProbeSpec{Address: "127.0.0.1:1"},
		},
		Table:   statetable.NewMemory(),
		Control: ch,
	})
	t.Cleanup(func() {
		p.Terminate()
		p.Join()
	})

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ok, err := ch.Poll(5 * time.Second)
	if err != nil || !ok {
		t.Fatalf("expected early-terminate sentinel, ok=%v err=%v", ok, err)
	}
	msg, err := ch.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg != control.MessageTerminateEarly {
		t.Fatalf("published %q, want %q", msg, control.MessageTerminateEarly)
	}
}

func TestAckedExitStaysQuiet(t *testing.T) {
	skipOnWindows(t)

	ch := control.NewChannel()
	p := New(Config{
		Name:    "Server-0",
		Command: []string{"/bin/sh", "-c", "sleep 0.1"},
		Table:   statetable.NewMemory(),
		Control: ch,
	})

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	// No probe, so the process acked at spawn; its exit is not an
	// aborted startup.
	p.Join()

	ok, err := ch.Poll(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if ok {
		msg, _ := ch.Recv()
		t.Fatalf("unexpected control message %q after acked exit", msg)
	}
}

func TestTerminateThenJoin(t *testing.T) {
	skipOnWindows(t)

	p := New(Config{
		Name:    "Server-0",
		Command: []string{"/bin/sh", "-c", "sleep 30"},
		Table:   statetable.NewMemory(),
	})

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	p.Join()

	if p.IsAlive() {
		t.Fatal("alive after terminate and join")
	}
	if p.State() != worker.Joined {
		t.Fatalf("state = %v, want Joined", p.State())
	}

	// Terminating a dead process is a no-op, not an error.
	if err := p.Terminate(); err != nil {
		t.Fatalf("terminate on dead process: %v", err)
	}
}

func TestRestartSpawnsNewIncarnation(t *testing.T) {
	skipOnWindows(t)

	evts := make(chan events.Event, 64)
	p := New(Config{
		Name:    "Server-0",
		Command: []string{"/bin/sh", "-c", `echo "files=$WARDEN_RELOADED_FILES"; sleep 30`},
		Table:   statetable.NewMemory(),
		Events:  evts,
	})
	t.Cleanup(func() {
		p.Terminate()
		p.Join()
	})

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	firstPid := p.Pid()

	if err := p.Restart(map[string]string{"reloaded_files": "app.py"}); err != nil {
		t.Fatalf("restart: %v", err)
	}

	if p.Pid() == firstPid {
		t.Fatalf("restart reused pid %d", firstPid)
	}
	if p.Restarts() != 1 {
		t.Fatalf("restarts = %d, want 1", p.Restarts())
	}
	if !p.IsAlive() {
		t.Fatal("not alive after restart")
	}

	// The restart context reaches the new incarnation through the
	// environment, visible on its stdout.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-evts:
			if evt.Type == events.TypeLog && evt.Message == "files=app.py" {
				return
			}
		case <-deadline:
			t.Fatal("restarted process never saw the restart context")
		}
	}
}

func TestStreamLogsForwardsOutput(t *testing.T) {
	skipOnWindows(t)

	evts := make(chan events.Event, 64)
	p := New(Config{
		Name:    "Server-0",
		Command: []string{"/bin/sh", "-c", "echo out-line; echo err-line >&2"},
		Table:   statetable.NewMemory(),
		Events:  evts,
	})

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Join()

	got := map[string]string{}
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case evt := <-evts:
			if evt.Type == events.TypeLog {
				got[evt.Message] = evt.Level
			}
		case <-deadline:
			t.Fatalf("log events incomplete: %v", got)
		}
	}
	if got["out-line"] != "info" {
		t.Fatalf("stdout level = %q", got["out-line"])
	}
	if got["err-line"] != "warn" {
		t.Fatalf("stderr level = %q", got["err-line"])
	}
}

func TestStartRequiresCommand(t *testing.T) {
	p := New(Config{Name: "Server-0"})
	if err := p.Start(); err == nil {
		t.Fatal("expected error for missing command")
	}
}
