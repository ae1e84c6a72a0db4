package broker

import (
	"context"
	"sync"
	"time"
)

// CallOption overrides per-call behavior. The zero value changes nothing.
type CallOption struct {
	// Timeout replaces the operation's default deadline when positive.
	Timeout time.Duration
}

func pickTimeout(fallback time.Duration, opts []CallOption) time.Duration {
	for _, o := range opts {
		if o.Timeout > 0 {
			return o.Timeout
		}
	}
	return fallback
}

// call is one correlated in-flight request: a request identity, the hub
// listeners registered for it, and a one-shot completion slot. Every call
// resolves exactly once — success, typed broker error, or cancellation — and
// detaches all of its listeners on the way out, whichever path fires first.
type call struct {
	reqID int64
	hub   *Hub

	listeners []*Listener

	once   sync.Once
	done   chan struct{}
	result any
	err    error
}

func newCall(hub *Hub, reqID int64) *call {
	return &call{reqID: reqID, hub: hub, done: make(chan struct{})}
}

// on registers fn for events of the given kind carrying this call's
// identity. Handlers run on the connection's reader goroutine; they must not
// block.
func (c *call) on(kind EventKind, fn func(Event)) {
	c.onMatch(kind, nil, fn)
}

// onMatch is like on but with a custom filter replacing the identity check.
func (c *call) onMatch(kind EventKind, match func(Event) bool, fn func(Event)) {
	l := c.hub.Attach(kind, func(ev Event) {
		if match == nil {
			if ev.ReqID != c.reqID {
				return
			}
		} else if !match(ev) {
			return
		}
		fn(ev)
	})
	c.listeners = append(c.listeners, l)
}

// fail registers the default error listener: any error event for this
// identity resolves the call with a typed broker error.
func (c *call) fail() {
	c.on(KindError, func(ev Event) {
		c.resolve(nil, newBrokerError(ev))
	})
}

// resolve completes the call. First resolution wins; later ones are no-ops,
// so an event arriving after cancellation cannot touch released state.
func (c *call) resolve(v any, err error) {
	c.once.Do(func() {
		c.result = v
		c.err = err
		close(c.done)
	})
}

// wait blocks until the call resolves, the deadline elapses, or ctx fires.
// Deadline expiry and external cancellation both resolve the call as
// cancelled. Listener cleanup runs on every exit path.
func (c *call) wait(ctx context.Context, timeout time.Duration) (any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		c.resolve(nil, ErrCancelled)
	case <-ctx.Done():
		c.resolve(nil, ErrCancelled)
	}
	// resolve may have lost the race to an event landing at the same
	// instant; done is closed either way and the first resolution stands
	<-c.done

	for _, l := range c.listeners {
		l.Close()
	}
	return c.result, c.err
}
