package publisher

import (
	"sync"
	"sync/atomic"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Connection tracks Disconnected -> Connecting -> Connected -> Disconnected.
// Errors are not states; only the transitions below change connectivity.
type Connection struct {
	state atomic.Int32
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) Connected() bool {
	return c.State() == Connected
}

// Connecting moves out of Disconnected. It reports false if already connecting or connected.
func (c *Connection) Connecting() bool {
	return c.state.CompareAndSwap(int32(Disconnected), int32(Connecting))
}

// Up marks the link connected and reports whether this was a change.
func (c *Connection) Up() bool {
	return c.state.Swap(int32(Connected)) != int32(Connected)
}

// Down marks the link disconnected and reports whether this was a change.
func (c *Connection) Down() bool {
	return c.state.Swap(int32(Disconnected)) != int32(Disconnected)
}

// Emitter delivers events in order on a bounded channel. Emit blocks while the channel is
// full and gives up once the emitter is closed; the channel itself is never closed so late
// callbacks cannot panic.
type Emitter struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewEmitter(size int) *Emitter {
	if size <= 0 {
		size = 1
	}
	return &Emitter{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit reports whether the event was queued.
func (e *Emitter) Emit(ev Event) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.ch <- ev:
		return true
	case <-e.done:
		return false
	}
}

func (e *Emitter) Close() {
	e.once.Do(func() { close(e.done) })
}
