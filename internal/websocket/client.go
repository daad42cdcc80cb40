package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pulsewire/internal/apps"
	"pulsewire/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 10 * 1024
)

// ErrClientDisconnected is returned by Send once the client is closed or
// its send buffer overflowed.
var ErrClientDisconnected = errors.New("client disconnected")

// NewSocketID generates the per-connection identifier handed out at
// handshake: two random positive integers joined by a dot, the format
// Pusher clients embed in channel-auth signatures.
func NewSocketID() string {
	return fmt.Sprintf("%d.%d", rand.Int63n(1_000_000_000)+1, rand.Int63n(1_000_000_000)+1)
}

// Client is one live socket. It carries the server-generated socket id and,
// after a successful handshake, the resolved app. It satisfies
// channels.Connection.
type Client struct {
	socketID string
	conn     Conn
	send     chan []byte

	// app is set exactly once, during HandleOpen, before any channel
	// interaction.
	app *apps.App

	ctx    context.Context
	cancel context.CancelFunc
	closed int32

	wg sync.WaitGroup
}

// NewClient wraps an accepted socket. The app is attached later by the
// dispatcher once the app key resolves.
func NewClient(conn Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		socketID: NewSocketID(),
		conn:     conn,
		send:     make(chan []byte, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) SocketID() string {
	return c.socketID
}

func (c *Client) App() *apps.App {
	return c.app
}

func (c *Client) setApp(app *apps.App) {
	c.app = app
}

// Send queues a message for the write pump. A full send buffer closes the
// client: a reader that slow is beyond saving. The send channel itself is
// never closed, so a Send racing the closure fails with
// ErrClientDisconnected instead of panicking; the write pump tears the
// socket down when the context cancels.
func (c *Client) Send(msg protocol.Message) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClientDisconnected
	default:
		slog.Warn("Send buffer full, closing client", "socketId", c.socketID)
		c.close()
		return ErrClientDisconnected
	}
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
	}
}

// readPump reads frames off the socket and hands them to the dispatcher.
// Message handling for one connection is strictly sequential: the next
// frame is not read until the previous one is fully dispatched.
func (c *Client) readPump(d *Dispatcher) {
	c.wg.Add(1)
	defer func() {
		c.wg.Done()
		c.close()
		d.HandleClose(context.Background(), c)
		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "socketId", c.socketID, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "socketId", c.socketID, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "socketId", c.socketID, "error", err)
			}
			return
		}

		d.HandleMessage(context.Background(), c, raw)
	}
}

// writePump drains the send buffer onto the socket and keeps the transport
// alive with pings. It is the connection's only writer.
func (c *Client) writePump() {
	c.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
	}()

	for {
		select {
		case data := <-c.send:
			if c.isClosed() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("Error writing message", "socketId", c.socketID, "error", err)
				return
			}

		case <-ticker.C:
			if c.isClosed() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "socketId", c.socketID, "error", err)
				return
			}

		case <-c.ctx.Done():
			// Closure initiated outside the read pump (overflow, fatal
			// error): say goodbye and drop the transport so the blocked
			// read pump unblocks too.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			c.conn.Close()
			return
		}
	}
}
