package mqtt

import (
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"mpu_telemetry/internal/publisher"
	"time"
)

const disconnectQuiesceMs = 250
const unsubscribeTimeout = 2 * time.Second

type Opt struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	KeepAlive   time.Duration
	EventBuffer int
}

type client struct {
	opt    Opt
	cli    paho.Client
	conn   publisher.Connection
	events *publisher.Emitter
	log    *log.Entry
}

var _ publisher.Client = (*client)(nil)

func newClient(opt Opt) *client {
	return &client{
		opt:    opt,
		events: publisher.NewEmitter(opt.EventBuffer),
		log:    log.WithField("component", "mqtt"),
	}
}

// NewClient builds a paho client that reconnects on its own; connectivity changes are
// reported through Events.
func NewClient(opt Opt) publisher.Client {
	c := newClient(opt)
	opts := paho.NewClientOptions().
		AddBroker(opt.Broker).
		SetClientID(opt.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(c.onReconnecting).
		SetDefaultPublishHandler(c.onMessage)
	if opt.KeepAlive > 0 {
		opts.SetKeepAlive(opt.KeepAlive)
	}
	if opt.Username != "" {
		opts.SetUsername(opt.Username)
		opts.SetPassword(opt.Password)
	}
	c.cli = paho.NewClient(opts)
	return c
}

func (c *client) onConnect(_ paho.Client) {
	if c.conn.Up() {
		c.log.Infoln("connected to broker", c.opt.Broker)
		c.events.Emit(publisher.Event{Kind: publisher.EventConnected})
	}
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Errorln("connection lost:", err)
	c.events.Emit(publisher.Event{Kind: publisher.EventError, ErrorKind: publisher.ErrorTransport, Err: err})
	if c.conn.Down() {
		c.events.Emit(publisher.Event{Kind: publisher.EventDisconnected})
	}
}

func (c *client) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	c.log.Debugln("reconnecting to", c.opt.Broker)
	c.conn.Connecting()
}

func (c *client) onMessage(_ paho.Client, msg paho.Message) {
	c.log.Debugf("data received on %s: %s", msg.Topic(), msg.Payload())
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	c.events.Emit(publisher.Event{Kind: publisher.EventData, Topic: msg.Topic(), Payload: payload})
}

func (c *client) Start() error {
	if !c.conn.Connecting() {
		return errors.New("client already started")
	}
	c.log.Infoln("client started, broker:", c.opt.Broker)
	token := c.cli.Connect()
	go func() {
		// with connect retry enabled the token only completes on success or Disconnect
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Errorln("connect failed:", err)
			c.events.Emit(publisher.Event{Kind: publisher.EventError, ErrorKind: publisher.ErrorConnect, Err: err})
			if c.conn.Down() {
				c.events.Emit(publisher.Event{Kind: publisher.EventDisconnected})
			}
		}
	}()
	return nil
}

type messageIDer interface {
	MessageID() uint16
}

func (c *client) Publish(topic string, payload []byte, qos byte, retain bool) int {
	if !c.conn.Connected() {
		c.log.Warnf("not connected, skipping publish to %s", topic)
		return publisher.PublishFailed
	}
	token := c.cli.Publish(topic, qos, retain, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.log.Errorf("publish to %s failed: %v", topic, err)
			return publisher.PublishFailed
		}
	default:
		// QoS 1/2 acknowledgement is tracked by paho and not awaited here
	}
	if m, ok := token.(messageIDer); ok {
		return int(m.MessageID())
	}
	return 0
}

func (c *client) Subscribe(topic string, qos byte) error {
	if !c.conn.Connected() {
		return publisher.ErrNotConnected
	}
	token := c.cli.Subscribe(topic, qos, c.onMessage)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Errorf("subscribe to %s failed: %v", topic, err)
			c.events.Emit(publisher.Event{Kind: publisher.EventError, ErrorKind: publisher.ErrorSubscribe, Topic: topic, Err: err})
			return
		}
		c.log.Infof("subscribed to %s (qos %d)", topic, qos)
		c.events.Emit(publisher.Event{Kind: publisher.EventSubscribed, Topic: topic})
	}()
	return nil
}

func (c *client) Unsubscribe(topic string) error {
	if !c.conn.Connected() {
		return publisher.ErrNotConnected
	}
	token := c.cli.Unsubscribe(topic)
	if !token.WaitTimeout(unsubscribeTimeout) {
		return errors.Errorf("unsubscribe from %s timed out", topic)
	}
	return token.Error()
}

func (c *client) Events() <-chan publisher.Event {
	return c.events.Events()
}

func (c *client) State() publisher.State {
	return c.conn.State()
}

func (c *client) Connected() bool {
	return c.conn.Connected()
}

// Stop disconnects and stops event delivery. Pending events stay readable.
func (c *client) Stop() {
	c.cli.Disconnect(disconnectQuiesceMs)
	c.conn.Down()
	c.events.Close()
	c.log.Infoln("client stopped")
}
