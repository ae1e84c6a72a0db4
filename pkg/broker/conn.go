package broker

import (
	"context"
	"sync"
	"time"
)

// ConnState is the connection's lifecycle state. Mutated only by
// EnsureConnected/Disconnect; read anywhere.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// EnsureConnected brings the connection up. It is a no-op when already
// connected. A connect attempt that times out leaves the client
// disconnected; there is no automatic retry — that is the caller's policy.
func (c *Client) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateConnected {
		return nil
	}
	c.state.Store(int32(StateConnecting))

	ack := make(chan struct{})
	var once sync.Once
	l := c.hub.Attach(KindConnAck, func(Event) {
		once.Do(func() { close(ack) })
	})
	defer l.Close()

	c.startPump()
	if err := c.transport.Connect(c.cfg.Host, c.cfg.Port, c.cfg.ClientID); err != nil {
		c.stopPump()
		c.state.Store(int32(StateDisconnected))
		return err
	}

	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-ack:
	case <-timer.C:
		c.teardown()
		return ErrConnectionTimeout
	case <-ctx.Done():
		c.teardown()
		return ErrCancelled
	}

	// let the post-connect noise flush before callers start issuing
	// commands
	settle := time.NewTimer(c.cfg.SettleDelay)
	defer settle.Stop()
	select {
	case <-settle.C:
	case <-ctx.Done():
		c.teardown()
		return ErrCancelled
	}

	c.state.Store(int32(StateConnected))
	c.log.Infow("connected", "host", c.cfg.Host, "port", c.cfg.Port)
	return nil
}

// Disconnect tears the connection down, waiting for the broker's close
// notification before stopping the reader.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateDisconnected {
		return nil
	}

	closed := make(chan struct{})
	var once sync.Once
	l := c.hub.Attach(KindConnClosed, func(Event) {
		once.Do(func() { close(closed) })
	})
	defer l.Close()

	if err := c.transport.Disconnect(); err != nil {
		c.teardown()
		return err
	}

	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()
	var err error
	select {
	case <-closed:
	case <-timer.C:
		err = ErrDisconnectTimeout
	case <-ctx.Done():
		err = ErrCancelled
	}

	c.stopPump()
	c.state.Store(int32(StateDisconnected))
	c.log.Info("disconnected")
	return err
}

// startPump starts the single reader goroutine: it drains the transport's
// event stream and invokes the hub synchronously, in arrival order. All
// event-driven completions happen on this goroutine.
func (c *Client) startPump() {
	stop := make(chan struct{})
	done := make(chan struct{})
	c.pumpStop = stop
	c.pumpDone = done

	events := c.transport.Events()
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				c.hub.Publish(ev)
			}
		}
	}()
}

func (c *Client) stopPump() {
	if c.pumpStop == nil {
		return
	}
	close(c.pumpStop)
	<-c.pumpDone
	c.pumpStop = nil
	c.pumpDone = nil
}

func (c *Client) teardown() {
	if err := c.transport.Disconnect(); err != nil {
		c.log.Warnw("disconnect during teardown failed", "err", err)
	}
	c.stopPump()
	c.state.Store(int32(StateDisconnected))
}
