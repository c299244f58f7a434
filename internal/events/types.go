// Package events provides event types and the bus provider for tablero.
package events

import "strconv"

// Event types for board state
const (
	BoardChanged   = "board.changed"
	BoardRefreshed = "board.refreshed"
)

// Event types for moves
const (
	CardMoved      = "card.moved"
	ListMoved      = "list.moved"
	MoveFailed     = "move.failed"
	MoveRolledBack = "move.rolled_back"
)

// Event types for CRUD
const (
	ListCreated = "list.created"
	ListUpdated = "list.updated"
	ListDeleted = "list.deleted"
	CardCreated = "card.created"
	CardUpdated = "card.updated"
	CardDeleted = "card.deleted"
	TaskCreated = "task.created"
	TaskUpdated = "task.updated"
	TaskDeleted = "task.deleted"
)

// BoardWildcardSubject matches every per-board subject.
const BoardWildcardSubject = "boards.>"

// BuildBoardSubject creates a subject scoped to one board and event type,
// e.g. boards.7.card.moved.
func BuildBoardSubject(boardID int64, eventType string) string {
	return "boards." + strconv.FormatInt(boardID, 10) + "." + eventType
}
