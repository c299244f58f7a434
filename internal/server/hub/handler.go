package hub

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
)

// Subscribers are terminal clients, so there is no browser origin to check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 10,
	WriteBufferSize: 1 << 10,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades board subscriptions.
type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewHandler creates a new websocket handler.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: log.WithComponent("ws_handler"),
	}
}

// HandleBoard serves GET /ws/boards/:id. Authentication happens in the
// route's middleware before the upgrade.
func (h *Handler) HandleBoard(c *gin.Context) {
	boardID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || boardID <= 0 {
		appErr := errors.BadRequest("invalid board id")
		c.JSON(appErr.HTTPStatus, gin.H{"code": appErr.Code, "message": appErr.Message})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), boardID, conn, h.hub, h.logger)
	h.logger.Debug("board subscriber connected",
		zap.String("client_id", client.ID),
		zap.Int64("board_id", boardID),
		zap.String("remote_addr", c.Request.RemoteAddr))

	if !h.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, shutdownFrame)
		_ = conn.Close()
		return
	}
	go client.WritePump()
	client.ReadPump()
}
