// Package gesture turns a finished drag into a board action. It knows
// nothing about the reconciler or any rendering layer.
package gesture

import (
	"strconv"
	"strings"

	"github.com/lizmareco/tablero/internal/common/errors"
)

// Drag types.
const (
	TypeCard = "card"
	TypeList = "list"
)

// BoardDroppableID is the droppable that holds the list sequence.
const BoardDroppableID = "board"

// listDraggablePrefix prefixes list ids used as draggable ids.
const listDraggablePrefix = "list-"

// Location is a slot inside a droppable container.
type Location struct {
	DroppableID string `json:"droppableId"`
	Index       int    `json:"index"`
}

// DragResult is what a drag-and-drop layer reports when a drag ends.
// Destination is nil when the item was dropped outside any container.
type DragResult struct {
	DraggableID string    `json:"draggableId"`
	Type        string    `json:"type"`
	Source      Location  `json:"source"`
	Destination *Location `json:"destination,omitempty"`
}

// ActionKind enumerates interpreted actions.
type ActionKind int

const (
	ActionNoop ActionKind = iota
	ActionMoveCard
	ActionMoveList
)

func (k ActionKind) String() string {
	switch k {
	case ActionMoveCard:
		return "move_card"
	case ActionMoveList:
		return "move_list"
	default:
		return "noop"
	}
}

// CardMove locates a card before and after a move. DestinationIndex is an
// insertion point in the destination list after the card was removed.
type CardMove struct {
	CardID            int64
	SourceListID      int64
	SourceIndex       int
	DestinationListID int64
	DestinationIndex  int
}

// ListMove locates a list in the board's list sequence before and after a move.
type ListMove struct {
	ListID           int64
	SourceIndex      int
	DestinationIndex int
}

// Action is the result of interpreting a drag. Exactly one of Card or List
// is set, matching Kind.
type Action struct {
	Kind ActionKind
	Card *CardMove
	List *ListMove
}

// Noop is the action for drags that change nothing.
var Noop = Action{Kind: ActionNoop}

// Interpret maps a drag result to an action. A missing destination or an
// unchanged location yields Noop. Malformed identifiers are rejected with
// a validation error.
func Interpret(r DragResult) (Action, error) {
	if r.Destination == nil {
		return Noop, nil
	}
	dst := *r.Destination
	if dst.DroppableID == r.Source.DroppableID && dst.Index == r.Source.Index {
		return Noop, nil
	}
	if r.Source.Index < 0 {
		return Noop, errors.ValidationError("source.index", "must not be negative")
	}
	if dst.Index < 0 {
		return Noop, errors.ValidationError("destination.index", "must not be negative")
	}

	switch r.Type {
	case TypeCard, "":
		return interpretCard(r, dst)
	case TypeList:
		return interpretList(r, dst)
	default:
		return Noop, errors.ValidationError("type", "unknown drag type "+strconv.Quote(r.Type))
	}
}

func interpretCard(r DragResult, dst Location) (Action, error) {
	cardID, err := parseID(r.DraggableID)
	if err != nil {
		return Noop, errors.ValidationError("draggableId", err.Error())
	}
	srcList, err := parseID(r.Source.DroppableID)
	if err != nil {
		return Noop, errors.ValidationError("source.droppableId", err.Error())
	}
	dstList, err := parseID(dst.DroppableID)
	if err != nil {
		return Noop, errors.ValidationError("destination.droppableId", err.Error())
	}
	return Action{
		Kind: ActionMoveCard,
		Card: &CardMove{
			CardID:            cardID,
			SourceListID:      srcList,
			SourceIndex:       r.Source.Index,
			DestinationListID: dstList,
			DestinationIndex:  dst.Index,
		},
	}, nil
}

func interpretList(r DragResult, dst Location) (Action, error) {
	if r.Source.DroppableID != BoardDroppableID || dst.DroppableID != BoardDroppableID {
		return Noop, errors.ValidationError("droppableId", "lists can only be dropped on the board")
	}
	if !strings.HasPrefix(r.DraggableID, listDraggablePrefix) {
		return Noop, errors.ValidationError("draggableId", "list draggable ids look like list-<id>")
	}
	listID, err := parseID(strings.TrimPrefix(r.DraggableID, listDraggablePrefix))
	if err != nil {
		return Noop, errors.ValidationError("draggableId", err.Error())
	}
	return Action{
		Kind: ActionMoveList,
		List: &ListMove{
			ListID:           listID,
			SourceIndex:      r.Source.Index,
			DestinationIndex: dst.Index,
		},
	}, nil
}

// ListDraggableID formats the draggable id for a list.
func ListDraggableID(listID int64) string {
	return listDraggablePrefix + strconv.FormatInt(listID, 10)
}

// CardDraggableID formats the draggable id for a card.
func CardDraggableID(cardID int64) string {
	return strconv.FormatInt(cardID, 10)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, &idError{raw: s}
	}
	return id, nil
}

type idError struct{ raw string }

func (e *idError) Error() string {
	return "invalid identifier " + strconv.Quote(e.raw)
}
