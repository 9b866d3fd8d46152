package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one live connection. Only the dispatch loop writes to send, and
// only unregister (or hub shutdown) closes it.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte
	log  *logrus.Entry
}

func newClient(h *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		id:   id,
		send: make(chan []byte, h.opts.SendBuffer),
		log:  h.log.WithField("conn", id),
	}
}

func (c *Client) ID() string { return c.id }

// ReadPump forwards inbound frames to the dispatch loop until the
// connection fails, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Post(func() { c.hub.unregister(c) })
		_ = c.conn.Close()
		c.log.Debug("[ReadPump] exited")
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnf("[ReadPump] unexpected close: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.log.Debugf("[ReadPump] ignoring non-text frame type %d", messageType)
			continue
		}

		if !c.hub.Post(func() {
			if c.hub.handler != nil {
				c.hub.handler.Handle(c.id, message)
			}
		}) {
			return
		}
	}
}

// WritePump drains send to the socket and keeps the connection alive with
// pings. It exits when send is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.log.Debug("[WritePump] exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warnf("[WritePump] write failed: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debugf("[WritePump] ping failed: %v", err)
				return
			}
		}
	}
}
