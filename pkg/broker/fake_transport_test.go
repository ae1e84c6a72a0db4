package broker

import (
	"context"
	"sync"
	"testing"
	"time"
)

const testSeed = 100

// fakeTransport scripts the broker side of the conversation. Connect pushes
// the ack and the identity seed; Send records the command and replays
// whatever the script returns for it.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []Command
	events chan Event

	// onSend returns the events to push in response to a command. Nil
	// means no response.
	onSend  func(cmd Command) []Event
	sendErr error

	connectErr error
	seed       int64
	skipSeed   bool
	skipAck    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan Event, 256),
		seed:   testSeed,
	}
}

func (f *fakeTransport) Connect(host string, port int, clientID int) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.skipAck {
		return nil
	}
	f.events <- Event{Kind: KindConnAck}
	if !f.skipSeed {
		f.events <- Event{Kind: KindNextOrderID, NextID: f.seed}
	}
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.events <- Event{Kind: KindConnClosed}
	return nil
}

func (f *fakeTransport) Send(cmd Command) error {
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	script := f.onSend
	f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if script != nil {
		for _, ev := range script(cmd) {
			f.events <- ev
		}
	}
	return nil
}

func (f *fakeTransport) Events() <-chan Event { return f.events }

func (f *fakeTransport) sentCommands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) push(ev Event) {
	f.events <- ev
}

func testConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           4001,
		ClientID:       7,
		Account:        "DU12345",
		ConnectTimeout: 500 * time.Millisecond,
		SettleDelay:    time.Millisecond,
		CallTimeout:    500 * time.Millisecond,
		TickTimeout:    500 * time.Millisecond,
		SecDefTimeout:  500 * time.Millisecond,
	}
}

// newTestClient returns a connected client over a fake transport.
func newTestClient(t *testing.T) (*Client, *fakeTransport) {
	t.Helper()
	f := newFakeTransport()
	c := NewClient(testConfig(), f)
	if err := c.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() {
		if c.State() == StateConnected {
			_ = c.Disconnect(context.Background())
		}
	})
	return c, f
}
