package signaling

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	sendBufferSize = 256
)

// wsConnection is the subset of *websocket.Conn a Client depends on,
// narrowed so tests can substitute a fake connection — the same
// abstraction the teacher's Client uses for its conn field.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

// Client represents one authenticated kiosk or monitor connection.
// readPump and writePump run in their own goroutines for the lifetime of
// the connection.
type Client struct {
	ID   string
	Role Role

	conn wsConnection
	send chan []byte

	hub *Hub
}

func newClient(id string, role Role, conn wsConnection, hub *Hub) *Client {
	return &Client{
		ID:   id,
		Role: role,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  hub,
	}
}

// Send queues payload for delivery without blocking; a full buffer drops
// the message rather than stalling the sender (matches the teacher's
// client.send pattern).
func (c *Client) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
		logging.Warn(context.Background(), "client send buffer full, dropping message",
			zap.String("client_id", c.ID), zap.String("role", string(c.Role)))
	}
}

// readPump decodes each inbound frame and hands it to the hub's router.
// Exits (and triggers disconnect cleanup) on any read error.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.dispatch(c, data)
	}
}

// writePump drains the send channel to the socket and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
