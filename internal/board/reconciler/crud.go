package reconciler

import (
	"fmt"
	"slices"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
)

// The entry points below apply CRUD results the backend has already
// accepted. They keep identifiers unique and positions dense, and bump the
// version so that a concurrently failing move resynchronizes instead of
// restoring over them.

// AddList appends a list to the end of the board.
func (r *Reconciler) AddList(list *models.List) error {
	if list == nil {
		return errors.ValidationError("list", "list is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, existing := r.findList(list.ID); existing != nil {
		return errors.Conflict(fmt.Sprintf("list %d is already on the board", list.ID))
	}
	cp := list.Clone()
	for _, c := range cp.Cards {
		if _, _, dup := r.findCard(c.ID); dup != nil {
			return errors.Conflict(fmt.Sprintf("card %d is already on the board", c.ID))
		}
	}
	cp.Renumber()
	r.lists = append(r.lists, cp)
	r.version++
	return nil
}

// RemoveList drops a list and every card in it.
func (r *Reconciler) RemoveList(listID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, l := r.findList(listID)
	if l == nil {
		return errors.NotFound("list", listID)
	}
	r.lists = slices.Delete(r.lists, i, i+1)
	r.version++
	return nil
}

// RenameList changes a list's display name.
func (r *Reconciler) RenameList(listID int64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, l := r.findList(listID)
	if l == nil {
		return errors.NotFound("list", listID)
	}
	l.Name = name
	r.version++
	return nil
}

// AddCard appends a card to the end of a list.
func (r *Reconciler) AddCard(listID int64, card *models.Card) error {
	if card == nil {
		return errors.ValidationError("card", "card is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, l := r.findList(listID)
	if l == nil {
		return errors.NotFound("list", listID)
	}
	if _, _, existing := r.findCard(card.ID); existing != nil {
		return errors.Conflict(fmt.Sprintf("card %d is already on the board", card.ID))
	}
	l.Cards = append(l.Cards, card.Clone())
	l.Renumber()
	r.version++
	return nil
}

// RemoveCard drops a card and closes the gap it leaves.
func (r *Reconciler) RemoveCard(cardID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, i, c := r.findCard(cardID)
	if c == nil {
		return errors.NotFound("card", cardID)
	}
	l.Cards = slices.Delete(l.Cards, i, i+1)
	l.Renumber()
	r.version++
	return nil
}

// UpdateCard replaces a card's attributes. Its list and position are
// owned by the reconciler and are left as they are.
func (r *Reconciler) UpdateCard(card *models.Card) error {
	if card == nil {
		return errors.ValidationError("card", "card is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	l, i, c := r.findCard(card.ID)
	if c == nil {
		return errors.NotFound("card", card.ID)
	}
	updated := card.Clone()
	updated.ListID = c.ListID
	updated.Position = c.Position
	l.Cards[i] = updated
	r.version++
	return nil
}
