package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 10
	writeWait         = 2 * time.Second
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

type client struct {
	socket *websocket.Conn
	send   chan []byte
	room   *Room
}

// read drains the socket so control frames are processed; inbound text is ignored.
func (c *client) read() {
	defer func() { _ = c.socket.Close() }()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer func() { _ = c.socket.Close() }()
	for msg := range c.send {
		_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Room fans published payloads out to every connected websocket client.
// Slow clients miss messages rather than stalling the telemetry loop.
type Room struct {
	forward chan []byte
	join    chan *client
	leave   chan *client
	clients map[*client]bool
	count   atomic.Int32
	done    chan struct{}
}

func NewRoom() *Room {
	return &Room{
		forward: make(chan []byte, messageBufferSize),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
		done:    make(chan struct{}),
	}
}

func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			for c := range r.clients {
				delete(r.clients, c)
				close(c.send)
			}
			r.count.Store(0)
			return
		case c := <-r.join:
			r.clients[c] = true
			r.count.Store(int32(len(r.clients)))
			log.Debugln("websocket client joined")
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
			}
			r.count.Store(int32(len(r.clients)))
			log.Debugln("websocket client left")
		case msg := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
					log.Debugln("websocket client too slow, message dropped")
				}
			}
		}
	}
}

// Forward queues msg for broadcast without blocking.
func (r *Room) Forward(msg []byte) {
	select {
	case r.forward <- msg:
	default:
	}
}

func (r *Room) Clients() int {
	return int(r.count.Load())
}

func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warnln("websocket upgrade failed:", err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		room:   r,
	}
	select {
	case r.join <- c:
	case <-r.done:
		_ = socket.Close()
		return
	}
	defer func() {
		select {
		case r.leave <- c:
		case <-r.done:
		}
	}()
	go c.write()
	c.read()
}
