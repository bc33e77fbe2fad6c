package mqtt

import (
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mpu_telemetry/internal/publisher"
)

type fakeToken struct {
	done chan struct{}
	err  error
	id   uint16
}

func completedToken(err error, id uint16) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err, id: id}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }
func (t *fakeToken) MessageID() uint16     { return t.id }

// fakePaho embeds the interface so only the methods under test need bodies.
type fakePaho struct {
	paho.Client
	mutex        sync.Mutex
	published    []string
	subscribed   []string
	unsubscribed []string
	publishErr   error
	nextID       uint16
	disconnected bool
}

func (f *fakePaho) Connect() paho.Token {
	return &fakeToken{done: make(chan struct{})}
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.published = append(f.published, topic)
	f.nextID++
	return completedToken(f.publishErr, f.nextID)
}

func (f *fakePaho) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return completedToken(nil, 0)
}

func (f *fakePaho) Unsubscribe(topics ...string) paho.Token {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return completedToken(nil, 0)
}

func (f *fakePaho) Disconnect(quiesce uint) {
	f.disconnected = true
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

func newTestClient() (*client, *fakePaho) {
	c := newClient(Opt{Broker: "tcp://test:1883", EventBuffer: 8})
	f := &fakePaho{}
	c.cli = f
	return c, f
}

func nextEvent(t *testing.T, c *client) publisher.Event {
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return publisher.Event{}
}

func TestPublish_DisconnectedIsNoop(t *testing.T) {
	c, f := newTestClient()
	id := c.Publish("esp32/sensor/data", []byte("{}"), 1, false)
	assert.Equal(t, publisher.PublishFailed, id)
	assert.Empty(t, f.published)
}

func TestPublish_ConnectedReturnsMessageID(t *testing.T) {
	c, f := newTestClient()
	require.NoError(t, c.Start())
	assert.Equal(t, publisher.Connecting, c.State())

	c.onConnect(f)
	assert.Equal(t, publisher.EventConnected, nextEvent(t, c).Kind)

	assert.Equal(t, 1, c.Publish("a", []byte("x"), 1, false))
	assert.Equal(t, 2, c.Publish("a", []byte("y"), 1, false))
	assert.Equal(t, []string{"a", "a"}, f.published)

	f.publishErr = errors.New("queue full")
	assert.Equal(t, publisher.PublishFailed, c.Publish("a", []byte("z"), 1, false))
}

func TestStart_Twice(t *testing.T) {
	c, _ := newTestClient()
	require.NoError(t, c.Start())
	assert.Error(t, c.Start())
}

func TestConnectionLost_EmitsErrorThenDisconnected(t *testing.T) {
	c, f := newTestClient()
	require.NoError(t, c.Start())
	c.onConnect(f)
	nextEvent(t, c)

	c.onConnectionLost(f, errors.New("EOF"))
	ev := nextEvent(t, c)
	assert.Equal(t, publisher.EventError, ev.Kind)
	assert.Equal(t, publisher.ErrorTransport, ev.ErrorKind)
	assert.Equal(t, publisher.EventDisconnected, nextEvent(t, c).Kind)
	assert.False(t, c.Connected())

	c.onReconnecting(f, nil)
	assert.Equal(t, publisher.Connecting, c.State())
	c.onConnect(f)
	assert.Equal(t, publisher.EventConnected, nextEvent(t, c).Kind)
	assert.True(t, c.Connected())
}

func TestSubscribeAndData(t *testing.T) {
	c, f := newTestClient()
	assert.ErrorIs(t, c.Subscribe("esp32/command", 1), publisher.ErrNotConnected)

	require.NoError(t, c.Start())
	c.onConnect(f)
	nextEvent(t, c)

	require.NoError(t, c.Subscribe("esp32/command", 1))
	ev := nextEvent(t, c)
	assert.Equal(t, publisher.EventSubscribed, ev.Kind)
	assert.Equal(t, "esp32/command", ev.Topic)

	payload := []byte("INTERVAL:2000")
	c.onMessage(f, &fakeMessage{topic: "esp32/command", payload: payload})
	payload[0] = 'X'
	ev = nextEvent(t, c)
	assert.Equal(t, publisher.EventData, ev.Kind)
	assert.Equal(t, "INTERVAL:2000", string(ev.Payload))
}

func TestStop(t *testing.T) {
	c, f := newTestClient()
	require.NoError(t, c.Start())
	c.onConnect(f)
	nextEvent(t, c)

	require.NoError(t, c.Unsubscribe("esp32/command"))
	assert.Equal(t, []string{"esp32/command"}, f.unsubscribed)

	c.Stop()
	assert.True(t, f.disconnected)
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Unsubscribe("esp32/command"), publisher.ErrNotConnected)

	// late callbacks after Stop are dropped without blocking
	c.onMessage(f, &fakeMessage{topic: "t", payload: []byte("p")})
}
