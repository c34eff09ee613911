package server

import (
	"net/http"
	"time"

	"tw-tick-api/src/models"
	"tw-tick-api/src/service"
	"tw-tick-api/src/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets tracks open clients so Stop can cancel them.
func (s *FastAPIServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}

		case client := <-s.unregister:
			delete(s.clients, client)

		case <-s.quit:
			for client := range s.clients {
				client.cancel()
			}
			s.clients = make(map[*Client]struct{})
			return
		}
	}
}

// -----------------------------------------------------------------------------

// addClient reports false once the server is stopping.
func (s *FastAPIServer) addClient(c *Client) bool {
	select {
	case s.register <- c:
		return true
	case <-s.quit:
		return false
	}
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) removeClient(c *Client) {
	select {
	case s.unregister <- c:
	case <-s.quit:
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

// upgrade hands the connection to a new client with both pumps running.
func (s *FastAPIServer) upgrade(c *gin.Context) (*Client, bool) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return nil, false
	}

	client := newClient(s, conn, c.ClientIP())
	if !s.addClient(client) {
		conn.Close()
		return nil, false
	}
	go client.writePump()
	go client.readPump()
	return client, true
}

// -----------------------------------------------------------------------------

// handleTickStream replays one stock-day: admission, then a stream session.
// The admission slot is held until the connection is gone.
func (s *FastAPIServer) handleTickStream(c *gin.Context) {
	client, ok := s.upgrade(c)
	if !ok {
		return
	}
	defer client.finish()

	slot, err := s.Governor.TryAdmitWebSocket(client.ip)
	if err != nil {
		client.fail(err)
		return
	}
	client.releaseOnClose(slot.Release)

	stockID := c.Param("stock_id")
	if err := service.ValidateStockID(stockID); err != nil {
		client.fail(err)
		return
	}
	date, err := s.Query.ParseRequestDate(c.Param("date"))
	if err != nil {
		client.fail(err)
		return
	}
	convert, err := queryBool(c, "convert_formats", s.Config.DefaultConvertFormats)
	if err != nil {
		client.fail(err)
		return
	}

	// the slot belongs to the connection, which outlives the session while
	// queued messages drain
	ws := s.Config.WebSocket
	session := stream.NewSession(stockID, date, client, s.Query, s.Query.Transformer, nil, stream.Options{
		Interval:       time.Duration(ws.StreamIntervalMs) * time.Millisecond,
		FetchTimeout:   time.Duration(ws.FetchTimeoutSeconds) * time.Second,
		ConvertFormats: convert,
	}, s.Logger)
	s.Logger.Info("Stream %s opened by %s for %s on %s", session.ID, client.ip, stockID, c.Param("date"))

	state := session.Run(client.ctx)
	s.Logger.Debug("Stream %s ended %s", session.ID, state)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) handleHeartbeat(c *gin.Context) {
	client, ok := s.upgrade(c)
	if !ok {
		return
	}
	defer client.finish()

	slot, err := s.Governor.TryAdmitWebSocket(client.ip)
	if err != nil {
		client.fail(err)
		return
	}
	client.releaseOnClose(slot.Release)

	interval := time.Duration(s.Config.WebSocket.HeartbeatInterval) * time.Second
	if err := stream.NewHeartbeatEmitter(interval, client, s.Logger).Run(client.ctx); err != nil {
		s.Logger.Debug("Heartbeat to %s ended: %v", client.ip, err)
	}
}

// -----------------------------------------------------------------------------

func errorMessage(msg string) models.MErrorMessage {
	return models.MErrorMessage{Error: msg}
}
