package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/warden/internal/control"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Publisher: control.NewChannel()}); err == nil {
		t.Fatal("expected error without paths")
	}
	if _, err := New(Config{Paths: []string{"."}}); err == nil {
		t.Fatal("expected error without publisher")
	}
}

func TestRunPublishesRestartOnChange(t *testing.T) {
	dir := t.TempDir()
	ch := control.NewChannel()

	w, err := New(Config{
		Paths:     []string{dir},
		Debounce:  50 * time.Millisecond,
		Publisher: ch,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to install its watches.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(dir, "app.py")
	if err := os.WriteFile(target, []byte("print('hello')\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ok, err := ch.Poll(5 * time.Second)
	if err != nil || !ok {
		t.Fatalf("expected restart order, ok=%v err=%v", ok, err)
	}
	msg, err := ch.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if !strings.HasPrefix(msg, control.MessageAllProcesses+":") {
		t.Fatalf("message %q not addressed to all processes", msg)
	}
	if !strings.Contains(msg, "app.py") {
		t.Fatalf("payload missing changed file: %q", msg)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRunCoalescesBurstsIntoOneOrder(t *testing.T) {
	dir := t.TempDir()
	ch := control.NewChannel()

	w, err := New(Config{
		Paths:     []string{dir},
		Debounce:  150 * time.Millisecond,
		Publisher: ch,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"a.py", "b.py", "c.py"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	ok, err := ch.Poll(5 * time.Second)
	if err != nil || !ok {
		t.Fatalf("expected restart order, ok=%v err=%v", ok, err)
	}
	msg, err := ch.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	for _, name := range []string{"a.py", "b.py", "c.py"} {
		if !strings.Contains(msg, name) {
			t.Fatalf("coalesced payload %q missing %s", msg, name)
		}
	}

	// The burst produced exactly one order.
	if ok, _ := ch.Poll(300 * time.Millisecond); ok {
		extra, _ := ch.Recv()
		t.Fatalf("unexpected second order %q", extra)
	}
}

func TestRunPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	ch := control.NewChannel()

	w, err := New(Config{
		Paths:     []string{dir},
		Debounce:  50 * time.Millisecond,
		Publisher: ch,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(dir, "pkg")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// Drain the order caused by the directory creation itself.
	if ok, err := ch.Poll(2 * time.Second); err == nil && ok {
		_, _ = ch.Recv()
	}
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "mod.py"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err := ch.Poll(200 * time.Millisecond)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if ok {
			msg, _ := ch.Recv()
			if strings.Contains(msg, "mod.py") {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("change in new subdirectory never published")
		}
	}
}
