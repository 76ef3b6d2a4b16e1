package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLifecycle(t *testing.T) {
	started := make(chan struct{})
	l := NewLocal("aux", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})

	if l.IsAlive() {
		t.Fatal("alive before start")
	}
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("routine never ran")
	}
	if !l.IsAlive() {
		t.Fatal("not alive after start")
	}
	if got := l.State(); got != Started {
		t.Fatalf("state = %v, want Started", got)
	}

	if err := l.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	l.Join()
	if got := l.State(); got != Joined {
		t.Fatalf("state after join = %v, want Joined", got)
	}
	if l.IsAlive() {
		t.Fatal("alive after join")
	}
}

func TestLocalStartIsIdempotent(t *testing.T) {
	runs := make(chan struct{}, 2)
	l := NewLocal("aux", func(ctx context.Context) error {
		runs <- struct{}{}
		<-ctx.Done()
		return nil
	})
	t.Cleanup(func() {
		l.Terminate()
		l.Join()
	})

	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	select {
	case <-runs:
	case <-time.After(time.Second):
		t.Fatal("routine never ran")
	}
	select {
	case <-runs:
		t.Fatal("routine ran twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalRestartRunsRoutineAgain(t *testing.T) {
	runs := make(chan struct{}, 4)
	l := NewLocal("aux", func(ctx context.Context) error {
		runs <- struct{}{}
		<-ctx.Done()
		return nil
	})
	t.Cleanup(func() {
		l.Terminate()
		l.Join()
	})

	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-runs

	if err := l.Restart(nil); err != nil {
		t.Fatalf("restart: %v", err)
	}
	select {
	case <-runs:
	case <-time.After(time.Second):
		t.Fatal("routine did not run after restart")
	}
}

func TestLocalErr(t *testing.T) {
	boom := errors.New("boom")
	l := NewLocal("aux", func(ctx context.Context) error {
		return boom
	})
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	l.Join()
	if !errors.Is(l.Err(), boom) {
		t.Fatalf("Err() = %v, want boom", l.Err())
	}
}
