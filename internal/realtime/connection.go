package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients only speak protocol-level ping/pong; anything bigger than
	// this on the read side is garbage.
	maxReadLimit = 512

	sendBufferSize = 16
)

// Connection is one live WebSocket session for one user. Writes go through
// a buffered channel drained by the write pump; trySend never blocks.
type Connection struct {
	UserID      uuid.UUID
	ConnectedAt time.Time

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func NewConnection(userID uuid.UUID, ws *websocket.Conn) *Connection {
	return &Connection{
		UserID:      userID,
		ConnectedAt: time.Now(),
		ws:          ws,
		send:        make(chan []byte, sendBufferSize),
		closed:      make(chan struct{}),
	}
}

// trySend queues payload without blocking. False means the connection is
// closed or its buffer is full — either way the caller should drop it.
func (c *Connection) trySend(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close shuts the connection down; safe to call from any goroutine, any
// number of times.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// Serve runs the read and write pumps and blocks until the peer goes away.
// The caller is responsible for Register/Unregister around it.
func (c *Connection) Serve() {
	go c.writePump()
	c.readPump()
}

func (c *Connection) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// No application messages are expected; reading just drives the
		// keepalive and detects disconnects.
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
