package coretest

import (
	"context"
	"io"
	"sync"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// LiveConn is a core.LiveConn driven by Emit.
type LiveConn struct {
	// SendErr, when set, is returned by every SendAudio call.
	SendErr error
	// CloseErr is returned by the first Close call.
	CloseErr error

	events chan types.LiveEvent

	mu         sync.Mutex
	sent       []types.Blob
	closed     bool
	closeCalls int
	done       chan struct{}
}

var _ core.LiveConn = (*LiveConn)(nil)

// NewLiveConn returns an open connection.
func NewLiveConn() *LiveConn {
	return &LiveConn{
		events: make(chan types.LiveEvent, 64),
		done:   make(chan struct{}),
	}
}

// Emit queues an inbound event.
func (c *LiveConn) Emit(ev types.LiveEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// SendAudio implements core.LiveConn.
func (c *LiveConn) SendAudio(_ context.Context, blob types.Blob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	if c.closed {
		return io.ErrClosedPipe
	}
	c.sent = append(c.sent, blob)
	return nil
}

// Receive implements core.LiveConn.
func (c *LiveConn) Receive(ctx context.Context) (types.LiveEvent, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.done:
		return types.LiveEvent{}, io.EOF
	case <-ctx.Done():
		return types.LiveEvent{}, ctx.Err()
	}
}

// Close implements core.LiveConn.
func (c *LiveConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.CloseErr
}

// Sent returns every blob passed to SendAudio.
func (c *LiveConn) Sent() []types.Blob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Blob(nil), c.sent...)
}

// Closed reports whether Close was called.
func (c *LiveConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCalls returns how many times Close was called.
func (c *LiveConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}
