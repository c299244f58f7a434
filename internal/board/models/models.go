package models

import (
	"time"

	"github.com/lizmareco/tablero/internal/common/constants"
)

// Board represents a Kanban board and its lists in display order.
type Board struct {
	ID          int64   `json:"id"`
	WorkspaceID int64   `json:"workspace_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Lists       []*List `json:"lists"`
}

// List is an ordered column of cards. MaxWIP of zero means no limit.
type List struct {
	ID      int64   `json:"id"`
	BoardID int64   `json:"board_id"`
	Name    string  `json:"name"`
	MaxWIP  int     `json:"max_wip"`
	Cards   []*Card `json:"cards"`
}

// Card is a unit of work. Position is its index within the owning list and
// is rewritten by every structural change; it is never authoritative input.
type Card struct {
	ID               int64      `json:"id"`
	ListID           int64      `json:"list_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Label            string     `json:"label,omitempty"`
	AssignedUserID   *int64     `json:"assigned_user_id,omitempty"`
	AssignedUserName string     `json:"assigned_user_name,omitempty"`
	Status           string     `json:"status"`
	Position         int        `json:"position"`
}

// Task is a checklist item attached to a card.
type Task struct {
	ID          int64      `json:"id"`
	CardID      int64      `json:"card_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Workspace groups boards and the users allowed to see them.
type Workspace struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	UserIDs     []int64 `json:"user_ids,omitempty"`
}

// User is a registered account.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// StatEntry is one dashboard slice.
type StatEntry struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// IsClosed reports whether the card has been closed. An empty status is open.
func (c *Card) IsClosed() bool {
	return c.Status == constants.StatusClosed
}

// IsOverdue reports whether the due date has passed and the card is still open.
func (c *Card) IsOverdue(now time.Time) bool {
	return isOverdue(c.DueDate, c.Status, now)
}

// Clone returns a deep copy of the card.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	if c.DueDate != nil {
		d := *c.DueDate
		out.DueDate = &d
	}
	if c.AssignedUserID != nil {
		id := *c.AssignedUserID
		out.AssignedUserID = &id
	}
	return &out
}

// IsClosed reports whether the task has been checked off.
func (t *Task) IsClosed() bool {
	return t.Status == constants.StatusClosed
}

// IsOverdue applies the same rule as Card.IsOverdue.
func (t *Task) IsOverdue(now time.Time) bool {
	return isOverdue(t.DueDate, t.Status, now)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	return &out
}

// AtWIPLimit reports whether the list holds at least MaxWIP cards.
// Advisory only: moves are never refused because of it.
func (l *List) AtWIPLimit() bool {
	return l.MaxWIP > 0 && len(l.Cards) >= l.MaxWIP
}

// Clone returns a deep copy of the list and its cards.
func (l *List) Clone() *List {
	if l == nil {
		return nil
	}
	out := *l
	out.Cards = make([]*Card, len(l.Cards))
	for i, c := range l.Cards {
		out.Cards[i] = c.Clone()
	}
	return &out
}

// IndexOf returns the position of cardID in the list, or -1.
func (l *List) IndexOf(cardID int64) int {
	for i, c := range l.Cards {
		if c.ID == cardID {
			return i
		}
	}
	return -1
}

// Renumber rewrites card positions to 0..n-1 and points every card at l.
func (l *List) Renumber() {
	for i, c := range l.Cards {
		c.Position = i
		c.ListID = l.ID
	}
}

// CloneLists deep-copies a list sequence.
func CloneLists(lists []*List) []*List {
	out := make([]*List, len(lists))
	for i, l := range lists {
		out[i] = l.Clone()
	}
	return out
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := *b
	out.Lists = CloneLists(b.Lists)
	return &out
}

func isOverdue(due *time.Time, status string, now time.Time) bool {
	if due == nil || due.IsZero() {
		return false
	}
	return due.Before(now) && status != constants.StatusClosed
}
