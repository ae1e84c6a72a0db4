package broker

import (
	"sync"

	"github.com/gammazero/deque"
)

// Hub fans the transport's single event stream out to typed listeners.
// Publish is only ever called from the connection's reader goroutine, so
// listeners observe events in transport delivery order. The hub holds no
// business state and never buffers: a listener attached after an event was
// published will not see it.
type Hub struct {
	mu        sync.Mutex
	seq       uint64
	listeners map[EventKind][]*Listener
}

// Listener is one attached callback. Close detaches it; Close is idempotent
// and safe to call concurrently with Publish. The callback may be invoked at
// most once more for an event already being dispatched when Close returns.
type Listener struct {
	hub  *Hub
	id   uint64
	kind EventKind
	fn   func(Event)
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[EventKind][]*Listener)}
}

// Attach registers fn for every published event of the given kind.
func (h *Hub) Attach(kind EventKind, fn func(Event)) *Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	l := &Listener{hub: h, id: h.seq, kind: kind, fn: fn}
	h.listeners[kind] = append(h.listeners[kind], l)
	return l
}

// Publish delivers ev synchronously to every listener of ev.Kind.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	ls := h.listeners[ev.Kind]
	snapshot := make([]*Listener, len(ls))
	copy(snapshot, ls)
	h.mu.Unlock()

	// invoked outside the lock so a listener can detach itself (or others)
	// without deadlocking
	for _, l := range snapshot {
		l.fn(ev)
	}
}

func (l *Listener) Close() {
	h := l.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	ls := h.listeners[l.kind]
	for i, cur := range ls {
		if cur.id == l.id {
			h.listeners[l.kind] = append(ls[:i], ls[i+1:]...)
			return
		}
	}
}

func (h *Hub) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ls := range h.listeners {
		n += len(ls)
	}
	return n
}

// Stream is a channel-backed subscription for long-lived feeds (ticks, PnL,
// order events). Events are staged in an unbounded deque so the reader
// goroutine never blocks on a slow consumer.
type Stream struct {
	mu     sync.Mutex
	buf    deque.Deque[Event]
	wake   chan struct{}
	out    chan Event
	quit   chan struct{}
	closed bool

	listeners []*Listener
}

// Channel attaches a stream for the given kinds. Only events for which match
// returns true are delivered; a nil match delivers everything.
func (h *Hub) Channel(match func(Event) bool, kinds ...EventKind) *Stream {
	s := &Stream{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		quit: make(chan struct{}),
	}
	for _, kind := range kinds {
		l := h.Attach(kind, func(ev Event) {
			if match != nil && !match(ev) {
				return
			}
			s.push(ev)
		})
		s.listeners = append(s.listeners, l)
	}
	go s.pump()
	return s
}

// Events returns the stream's delivery channel. The channel is closed when
// the stream is closed and the staged backlog has drained.
func (s *Stream) Events() <-chan Event { return s.out }

// Close detaches the stream from the hub. Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	for _, l := range s.listeners {
		l.Close()
	}
	close(s.quit)
}

func (s *Stream) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf.PushBack(ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stream) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for s.buf.Len() > 0 {
			ev := s.buf.PopFront()
			s.mu.Unlock()
			select {
			case s.out <- ev:
			case <-s.quit:
				return
			}
			s.mu.Lock()
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.quit:
			return
		}
	}
}
