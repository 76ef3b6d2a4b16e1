package events

import "sync"

// Stream fans events out to interested subscribers (the websocket API,
// tests). Log events are retained in a bounded backlog so late
// subscribers see recent output. Delivery to a slow subscriber is
// best-effort; lifecycle consumers that must not miss events read the
// primary channel instead.
type Stream struct {
	mu       sync.Mutex
	closed   bool
	subs     map[chan Event]struct{}
	backlog  []Event
	capacity int
}

// NewStream constructs a stream retaining up to capacity log events.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = 1
	}
	return &Stream{
		subs:     make(map[chan Event]struct{}),
		capacity: capacity,
	}
}

// Subscribe registers a subscriber and replays the backlog into it. The
// returned release func must be called to unregister. The boolean is
// false when the stream is already closed.
func (s *Stream) Subscribe(buffer int) (<-chan Event, func(), bool) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	if s.closed {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}, false
	}
	backlog := append([]Event(nil), s.backlog...)
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	for _, evt := range backlog {
		select {
		case ch <- evt:
		default:
		}
	}

	release := func() {
		s.mu.Lock()
		if s.subs != nil {
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		}
		s.mu.Unlock()
	}

	return ch, release, true
}

// Publish delivers an event to every subscriber without blocking.
func (s *Stream) Publish(evt Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if evt.Type == TypeLog {
		s.backlog = append(s.backlog, evt)
		if len(s.backlog) > s.capacity {
			s.backlog = s.backlog[len(s.backlog)-s.capacity:]
		}
	}
	subscribers := make([]chan Event, 0, len(s.subs))
	for ch := range s.subs {
		subscribers = append(subscribers, ch)
	}
	s.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close terminates the stream and closes all subscriber channels.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.backlog = nil
}
