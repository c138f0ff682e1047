package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chainscope/bridge-sentinel/pkg/auth"
)

// wsConn is the connection surface the hub needs. *websocket.Conn
// satisfies it; tests substitute a fake.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one registered websocket connection.
type Client struct {
	id       string
	identity *auth.Identity
	conn     wsConn
	hub      *Hub

	send chan []byte

	mu            sync.Mutex
	lastHeartbeat time.Time
	closed        bool
}

func newClient(id string, identity *auth.Identity, conn wsConn, hub *Hub) *Client {
	return &Client{
		id:            id,
		identity:      identity,
		conn:          conn,
		hub:           hub,
		send:          make(chan []byte, hub.cfg.SendBuffer),
		lastHeartbeat: time.Now(),
	}
}

// touch records a heartbeat.
func (c *Client) touch() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

func (c *Client) heartbeatAge(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastHeartbeat)
}

// enqueue hands a frame to the write pump. A full buffer counts as a
// delivery failure and reports false; the caller disconnects the client.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// deliver marshals and enqueues a single message.
func (c *Client) deliver(msg Outbound) bool {
	frame, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return c.enqueue(frame)
}

// close marks the client closed and shuts the connection. Idempotent.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.conn.Close()
}

// readPump consumes client frames until the connection drops. Runs as a
// goroutine per client; exit triggers the disconnect path.
func (c *Client) readPump() {
	defer c.hub.Disconnect(c)

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame []byte) {
	var msg Inbound
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.deliver(errorMessage("malformed message"))
		return
	}

	switch msg.Type {
	case MsgSubscribe:
		granted := c.hub.Subscribe(c, msg.Channels)
		c.deliver(subscriptionAck(MsgSubscribed, granted))
	case MsgUnsubscribe:
		removed := c.hub.Unsubscribe(c, msg.Channels)
		c.deliver(subscriptionAck(MsgUnsubscribed, removed))
	case MsgHeartbeat:
		c.touch()
	case MsgGetSubscriptions:
		c.deliver(subscriptionAck(MsgSubscriptions, c.hub.SubscriptionsOf(c)))
	default:
		c.deliver(errorMessage("unknown message type"))
	}
}

// writePump drains the send queue onto the wire. One writer per
// connection; a write failure ends the pump and the disconnect path
// cleans up.
func (c *Client) writePump() {
	for frame := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
			c.hub.logger.Debug("Failed to set write deadline",
				zap.String("client_id", c.id),
				zap.Error(err))
			c.hub.Disconnect(c)
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.hub.Disconnect(c)
			return
		}
	}
}
