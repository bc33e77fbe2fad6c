package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnection_Transitions(t *testing.T) {
	var c Connection
	assert.Equal(t, Disconnected, c.State())
	assert.False(t, c.Connected())

	assert.True(t, c.Connecting())
	assert.False(t, c.Connecting())
	assert.Equal(t, Connecting, c.State())

	assert.True(t, c.Up())
	assert.False(t, c.Up())
	assert.True(t, c.Connected())
	assert.False(t, c.Connecting())

	assert.True(t, c.Down())
	assert.False(t, c.Down())
	assert.Equal(t, "disconnected", c.State().String())
}

func TestEmitter_PreservesOrder(t *testing.T) {
	e := NewEmitter(4)
	go func() {
		for i := 0; i < 20; i++ {
			e.Emit(Event{Kind: EventData, Payload: []byte{byte(i)}})
		}
	}()

	for i := 0; i < 20; i++ {
		select {
		case ev := <-e.Events():
			assert.Equal(t, byte(i), ev.Payload[0])
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestEmitter_CloseUnblocks(t *testing.T) {
	e := NewEmitter(1)
	assert.True(t, e.Emit(Event{Kind: EventConnected}))

	done := make(chan bool)
	go func() { done <- e.Emit(Event{Kind: EventDisconnected}) }()

	time.Sleep(20 * time.Millisecond)
	e.Close()
	e.Close()

	select {
	case queued := <-done:
		assert.False(t, queued)
	case <-time.After(time.Second):
		t.Fatal("Emit did not return after Close")
	}
	assert.False(t, e.Emit(Event{Kind: EventConnected}))
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "data", EventData.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "event(42)", EventKind(42).String())
}
