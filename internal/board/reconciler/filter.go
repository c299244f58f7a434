package reconciler

import (
	"strings"

	"github.com/lizmareco/tablero/internal/board/models"
)

// Predicate selects cards for a filtered view.
type Predicate func(c *models.Card) bool

// Filter is the board's assignee/label filter. Empty fields match everything.
// AssigneeName matches exactly; Label matches after trimming, ignoring case.
type Filter struct {
	AssigneeID   *int64
	AssigneeName string
	Label        string
}

// IsZero reports whether the filter matches every card.
func (f Filter) IsZero() bool {
	return f.AssigneeID == nil && f.AssigneeName == "" && strings.TrimSpace(f.Label) == ""
}

// Match implements Predicate.
func (f Filter) Match(c *models.Card) bool {
	if f.AssigneeID != nil && (c.AssignedUserID == nil || *c.AssignedUserID != *f.AssigneeID) {
		return false
	}
	if f.AssigneeName != "" && c.AssignedUserName != f.AssigneeName {
		return false
	}
	if want := strings.TrimSpace(f.Label); want != "" {
		if !strings.EqualFold(strings.TrimSpace(c.Label), want) {
			return false
		}
	}
	return true
}

// FilterCards returns every list with only the cards matching pred, in
// stored order. Cards keep their stored Position so a filtered view can
// still address them. Stored state is never modified; a nil pred keeps
// every card.
func (r *Reconciler) FilterCards(pred Predicate) []*models.List {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.List, len(r.lists))
	for i, l := range r.lists {
		view := &models.List{
			ID:      l.ID,
			BoardID: l.BoardID,
			Name:    l.Name,
			MaxWIP:  l.MaxWIP,
			Cards:   make([]*models.Card, 0, len(l.Cards)),
		}
		for _, c := range l.Cards {
			if pred == nil || pred(c) {
				view.Cards = append(view.Cards, c.Clone())
			}
		}
		out[i] = view
	}
	return out
}

// FilterOptions returns the distinct assignee names and labels on the
// board, in first-seen order.
func (r *Reconciler) FilterOptions() (assignees []string, labels []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seenUsers := make(map[string]struct{})
	seenLabels := make(map[string]struct{})
	assignees = []string{}
	labels = []string{}
	for _, l := range r.lists {
		for _, c := range l.Cards {
			if c.AssignedUserName != "" {
				if _, ok := seenUsers[c.AssignedUserName]; !ok {
					seenUsers[c.AssignedUserName] = struct{}{}
					assignees = append(assignees, c.AssignedUserName)
				}
			}
			if c.Label != "" {
				if _, ok := seenLabels[c.Label]; !ok {
					seenLabels[c.Label] = struct{}{}
					labels = append(labels, c.Label)
				}
			}
		}
	}
	return assignees, labels
}
