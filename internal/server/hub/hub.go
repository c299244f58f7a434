// Package hub pushes board change notifications to websocket subscribers.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/events"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// Hub manages the websocket clients of every board.
type Hub struct {
	// Clients subscribed to each board
	boards map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *v1.LiveMessage
	done       chan struct{}

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a new hub. Call Run before registering clients.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		boards:     make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *v1.LiveMessage, 256),
		done:       make(chan struct{}),
		logger:     log.WithComponent("ws_hub"),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.boards[client.boardID] == nil {
				h.boards[client.boardID] = make(map[*Client]bool)
			}
			h.boards[client.boardID][client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered",
				zap.String("client_id", client.ID),
				zap.Int64("board_id", client.boardID))

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.boards {
		for client := range clients {
			close(client.send)
		}
	}
	h.boards = make(map[int64]map[*Client]bool)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.boards[client.boardID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.boards, client.boardID)
	}
	h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
}

func (h *Hub) broadcastMessage(msg *v1.LiveMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.boards[msg.BoardID] {
		select {
		case client.send <- data:
		default:
			// Client buffer full; the subscriber refreshes on its next message
		}
	}
}

// Register adds a client to the hub. It returns false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify tells the subscribers of boardID that it changed. It never blocks;
// notifications are dropped when the queue is full.
func (h *Hub) Notify(boardID int64, reason string) {
	msg := &v1.LiveMessage{Type: events.BoardChanged, BoardID: boardID, Reason: reason}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping notification", zap.Int64("board_id", boardID))
	}
}

// ClientCount returns the number of clients subscribed to boardID.
func (h *Hub) ClientCount(boardID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[boardID])
}
