package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Sequencer hands out request identities. Orders and queries draw from the
// same counter, so an identity is unique across every request kind for the
// life of the connection. The counter is seeded once from the next-valid-id
// event the broker pushes at connection time; callers arriving before the
// seed block until it lands.
//
// One Sequencer belongs to one Client. It is never shared across
// connections.
type Sequencer struct {
	next     atomic.Int64
	seeded   chan struct{}
	seedOnce sync.Once
	timeout  time.Duration
}

func newSequencer(timeout time.Duration) *Sequencer {
	return &Sequencer{
		seeded:  make(chan struct{}),
		timeout: timeout,
	}
}

// Seed installs the broker-assigned starting identity. Later seeds are
// ignored; the broker re-announces the value on some reconnect paths.
func (s *Sequencer) Seed(id int64) {
	s.seedOnce.Do(func() {
		s.next.Store(id)
		close(s.seeded)
	})
}

// NextOrderID returns the next identity. Strictly increasing and gap-free
// under concurrent callers; blocks only until the one-time seed arrives.
func (s *Sequencer) NextOrderID(ctx context.Context) (int64, error) {
	select {
	case <-s.seeded:
	default:
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		select {
		case <-s.seeded:
		case <-timer.C:
			return 0, ErrIdentityTimeout
		case <-ctx.Done():
			return 0, ErrCancelled
		}
	}
	return s.next.Add(1) - 1, nil
}
