package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	maxMessageSize = 4 * 1024 // clients only send control frames
	sendBuffer     = 256
)

var errClientGone = errors.New("websocket client disconnected")

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one WebSocket connection. Exactly one goroutine produces messages
// through SendJSON and then calls finish; writePump owns every write on conn.
type Client struct {
	hub  *FastAPIServer
	conn *websocket.Conn
	send chan interface{}
	ip   string

	ctx    context.Context
	cancel context.CancelFunc

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	finishOnce sync.Once
}

// -----------------------------------------------------------------------------

func newClient(hub *FastAPIServer, conn *websocket.Conn, ip string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	pongWait := time.Duration(hub.Config.WebSocket.PongWaitSeconds) * time.Second
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	writeWait := time.Duration(hub.Config.WebSocket.WriteWaitSeconds) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan interface{}, sendBuffer),
		ip:         ip,
		ctx:        ctx,
		cancel:     cancel,
		writeWait:  writeWait,
		pongWait:   pongWait,
		pingPeriod: pongWait * 9 / 10,
	}
}

// -----------------------------------------------------------------------------

// SendJSON queues v for writePump. It blocks while the buffer is full, so a
// slow reader slows its own session and nothing else.
func (c *Client) SendJSON(v interface{}) error {
	if c.ctx.Err() != nil {
		return errClientGone
	}
	select {
	case c.send <- v:
		return nil
	case <-c.ctx.Done():
		return errClientGone
	}
}

// -----------------------------------------------------------------------------

// finish lets writePump flush what is queued and close the connection.
func (c *Client) finish() {
	c.finishOnce.Do(func() { close(c.send) })
}

// -----------------------------------------------------------------------------

// fail sends one {"error": ...} message and closes.
func (c *Client) fail(err error) {
	_, msg := c.hub.errHandler.Translate(err)
	_ = c.SendJSON(errorMessage(msg))
	c.finish()
}

// -----------------------------------------------------------------------------

// releaseOnClose runs release after the last queued message was written or the
// peer went away, whichever ends the connection.
func (c *Client) releaseOnClose(release func()) {
	go func() {
		<-c.ctx.Done()
		release()
	}()
}

// -----------------------------------------------------------------------------
// readPump - watches the connection; clients are not expected to send data
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error from %s: %v", c.ip, err)
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				// producer is done
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Info("Write error to %s: %v", c.ip, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
