package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/logger"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// Subscribers never send payloads, only control frames.
	readLimit = 4 << 10

	sendBuffer = 64
)

var shutdownFrame = websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")

// Client is one websocket subscriber of a board.
type Client struct {
	ID      string
	boardID int64
	conn    *websocket.Conn
	hub     *Hub
	send    chan []byte
	logger  *logger.Logger
}

// NewClient creates a client for boardID.
func NewClient(id string, boardID int64, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:      id,
		boardID: boardID,
		conn:    conn,
		hub:     hub,
		send:    make(chan []byte, sendBuffer),
		logger:  log.WithFields(zap.String("client_id", id)).WithBoardID(boardID),
	}
}

// ReadPump keeps the read deadline moving on pongs and returns once the
// peer goes away, unregistering the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	c.conn.SetReadLimit(readLimit)
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			c.logger.Debug("subscriber dropped", zap.Error(err))
		}
		return
	}
}

// WritePump forwards notifications and pings until send is closed or a
// write fails.
func (c *Client) WritePump() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer func() { _ = c.conn.Close() }()

	for {
		var (
			kind    = websocket.PingMessage
			payload []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, shutdownFrame)
				return
			}
			kind, payload = websocket.TextMessage, msg
		case <-ping.C:
		}
		if err := c.write(kind, payload); err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(kind, payload)
}
