package chat

import (
	"net"
	"sync"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one authenticated websocket connection. A user may hold many.
// All writes go through Send and a single write pump.
type Client struct {
	ID     string // socket id, unique across the cluster
	UserID string

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool

	rooms map[string]struct{} // guarded by Hub.mu

	turn chan struct{} // closed once the latest async event has sent its request; read loop only
}

func NewClient(id, userID string, conn *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		rooms:  make(map[string]struct{}),
	}
}

// Send queues frame without blocking. It reports false when the client is
// gone or its queue is full; the frame is then dropped for this client.
func (c *Client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		logger.Warn("[WS] send queue full, frame dropped", zap.String("socket", c.ID), zap.String("user", c.UserID))
		return false
	}
}

// Close stops accepting frames; the write pump drains what is queued, sends
// a close frame and exits. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// writePump is the only writer on conn.
func (c *Client) writePump(conf config.WSConfig) {
	ticker := time.NewTicker(conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(conf.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Info("[WS] write err", zap.String("socket", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(conf.WriteWait)); err != nil {
				logger.Info("[WS] ping err", zap.String("socket", c.ID), zap.Error(err))
				return
			}
		}
	}
}

// readPump feeds every text/binary message to onFrame until the peer goes
// away or stops answering pings.
func (c *Client) readPump(conf config.WSConfig, onFrame func([]byte)) {
	if conf.MaxMessageSize > 0 {
		c.conn.SetReadLimit(conf.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(conf.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(conf.PongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				logger.Info("[WS] peer closed", zap.String("socket", c.ID))
			case isTimeout(err):
				logger.Info("[WS] read timeout", zap.String("socket", c.ID))
			default:
				logger.Info("[WS] read err", zap.String("socket", c.ID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(conf.PongWait))
		onFrame(data)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
