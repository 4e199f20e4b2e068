package signaling

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueFull  = errors.New("signaling: outbound queue full")
	ErrConnClosed = errors.New("signaling: connection closed")
)

// Emitter writes one event to the wire. *socket.Socket satisfies it.
type Emitter interface {
	Emit(event string, args ...any) error
}

type frame struct {
	event   string
	payload any
}

// QueuedConn serializes writes to one client through a buffered queue
// drained by a single goroutine, so events reach the client in the order
// they were sent.
type QueuedConn struct {
	id        string
	out       Emitter
	queue     chan frame
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewQueuedConn starts the writer goroutine. Call Close to stop it.
func NewQueuedConn(id string, out Emitter, size int, logger *zap.Logger) *QueuedConn {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &QueuedConn{
		id:     id,
		out:    out,
		queue:  make(chan frame, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writeLoop()
	return c
}

func (c *QueuedConn) ID() string { return c.id }

// Send enqueues an event without blocking. A full queue drops the event.
func (c *QueuedConn) Send(event string, payload any) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.queue <- frame{event: event, payload: payload}:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrQueueFull
	}
}

// Close stops the writer. Queued events not yet written are discarded.
func (c *QueuedConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *QueuedConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.queue:
			if err := c.out.Emit(f.event, f.payload); err != nil {
				c.logger.Debug("emit failed", zap.String("conn", c.id), zap.String("event", f.event), zap.Error(err))
			}
		}
	}
}
