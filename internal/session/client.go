package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabnotes/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Client is one live WebSocket connection. Frames are queued on a bounded
// channel and written by a single goroutine (WritePump), since gorilla
// connections allow one concurrent writer.
type Client struct {
	ID   string
	Conn *websocket.Conn

	send      chan models.WSFrame
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger

	mu   sync.Mutex
	hook func(models.WSFrame)
}

func NewClient(id string, conn *websocket.Conn, queueSize int, logger *zap.Logger) *Client {
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		ID:     id,
		Conn:   conn,
		send:   make(chan models.WSFrame, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// SetSendHook replaces the queue with a direct callback (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send queues frame without blocking. A full queue drops the frame.
func (c *Client) Send(frame models.WSFrame) error {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(frame)
		return nil
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} { return c.done }

// PrepareRead applies the read limit and keepalive deadline to the
// connection. Call once before the read loop.
func (c *Client) PrepareRead() {
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// WritePump drains the queue to the socket and keeps the connection alive
// with pings. It returns when the client is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(frame); err != nil {
				c.logger.Debug("websocket write failed", zap.String("conn_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is already queued, without waiting for more.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
