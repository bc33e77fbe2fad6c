package publisher

import (
	"fmt"
	"github.com/pkg/errors"
)

// PublishFailed is returned by Publish when the message was not handed to the client.
const PublishFailed = -1

var ErrNotConnected = errors.New("not connected")

type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventSubscribed
	EventData
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSubscribed:
		return "subscribed"
	case EventData:
		return "data"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// ErrorKind classifies EventError.
type ErrorKind string

const (
	ErrorTransport ErrorKind = "transport"
	ErrorConnect   ErrorKind = "connect"
	ErrorSubscribe ErrorKind = "subscribe"
)

// Event is one asynchronous notification from the client. Topic and Payload are set for
// EventData and EventSubscribed; ErrorKind and Err for EventError.
type Event struct {
	Kind      EventKind
	Topic     string
	Payload   []byte
	ErrorKind ErrorKind
	Err       error
}

// Client is a long-lived broker connection. Events are delivered from the client's
// own goroutines; consumers must not assume they run on the caller's goroutine.
type Client interface {
	// Start begins connecting in the background and returns immediately.
	Start() error
	// Publish returns the message id, or PublishFailed when not connected or rejected
	// immediately. Nothing is queued for later delivery.
	Publish(topic string, payload []byte, qos byte, retain bool) int
	// Subscribe requests a subscription; the acknowledgement arrives as EventSubscribed.
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	Events() <-chan Event
	State() State
	Connected() bool
	Stop()
}
