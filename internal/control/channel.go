// Package control implements the duplex message channel carrying
// restart and termination commands between the supervisor, its signal
// handler and external controllers such as the file watcher.
package control

import (
	"errors"
	"sync"
	"time"
)

// Control-channel message grammar. Anything that is not one of these
// sentinels is parsed as "<names>[:<payload>]" by the monitor loop.
const (
	// MessageTerminate requests a graceful shutdown of every worker.
	MessageTerminate = "__TERMINATE__"
	// MessageTerminateEarly is published by a worker process that exits
	// before completing startup; during the ack barrier it aborts the
	// barrier and escalates to kill.
	MessageTerminateEarly = "__TERMINATE_EARLY__"
	// MessageAllProcesses addresses a restart to every transient worker.
	MessageAllProcesses = "__ALL_PROCESSES__"
)

// ErrClosed is returned once the channel has been closed.
var ErrClosed = errors.New("control channel closed")

// Publisher is the sending half of the control channel.
type Publisher interface {
	Publish(msg string) error
}

// Subscriber is the receiving half. Poll waits up to the provided
// timeout for a pending message without consuming it; Recv consumes the
// next message.
type Subscriber interface {
	Poll(timeout time.Duration) (bool, error)
	Recv() (string, error)
}

const defaultCapacity = 256

// Channel is an in-memory FIFO control channel. The supervisor holds
// both halves of the same queue, so a message it republishes during the
// ack barrier loops back to its own subscriber once normal monitoring
// begins. Producers (workers, watcher, API) hold only the Publisher.
type Channel struct {
	mu      sync.Mutex
	ch      chan string
	pending *string
	closed  bool
}

// NewChannel constructs a control channel with the default capacity.
func NewChannel() *Channel {
	return &Channel{ch: make(chan string, defaultCapacity)}
}

// Publish enqueues a message. It blocks when the queue is full so no
// enqueued message is ever dropped.
func (c *Channel) Publish(msg string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ch := c.ch
	c.mu.Unlock()
	ch <- msg
	return nil
}

// Poll reports whether a message is pending, waiting up to timeout for
// one to arrive. The message stays queued for Recv.
func (c *Channel) Poll(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return true, nil
	}
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	ch := c.ch
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-ch:
		c.mu.Lock()
		c.pending = &msg
		c.mu.Unlock()
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// Recv consumes the next message. Callers are expected to Poll first;
// Recv blocks when nothing is queued.
func (c *Channel) Recv() (string, error) {
	c.mu.Lock()
	if c.pending != nil {
		msg := *c.pending
		c.pending = nil
		c.mu.Unlock()
		return msg, nil
	}
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	ch := c.ch
	c.mu.Unlock()
	return <-ch, nil
}

// Close marks the channel closed. Publish and Poll fail afterwards;
// messages already queued are lost.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
