package handler

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// client is the hub's view of one websocket connection. Frames are queued on a
// bounded buffer drained by the write pump.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, buffer int) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *client) ID() string {
	return c.id
}

// Send queues a frame without blocking. It reports false when the buffer is
// full or the connection is closing.
func (c *client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
