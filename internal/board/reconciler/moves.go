package reconciler

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/board/gesture"
	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/constants"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/tracing"
	"github.com/lizmareco/tablero/internal/events"
)

// CardMove and ListMove are the move requests produced by gesture.Interpret.
type (
	CardMove = gesture.CardMove
	ListMove = gesture.ListMove
)

// MoveResult reports the local outcome of a move. Applied is false for the
// same-position no-op. DestinationAtWIPLimit flags (but never blocks) a
// destination list holding at least its WIP limit after the move.
type MoveResult struct {
	Applied               bool
	DestinationAtWIPLimit bool
	Version               uint64
}

// pendingMove remembers what a failed persistence request needs to undo.
type pendingMove struct {
	kind     string
	entityID int64
	position int
	before   []*models.List
	produced uint64
}

var errClosed = errors.Conflict("board view is closed")

// MoveCard moves a card to DestinationIndex of DestinationListID, where the
// index is an insertion point after the card was removed from its source.
// The change is visible as soon as MoveCard returns; persistence follows on
// the card's serial queue.
func (r *Reconciler) MoveCard(ctx context.Context, m CardMove) (MoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return MoveResult{}, errClosed
	}

	_, src := r.findList(m.SourceListID)
	if src == nil {
		return MoveResult{}, errors.ValidationError("sourceListId", fmt.Sprintf("list %d is not on this board", m.SourceListID))
	}
	_, dst := r.findList(m.DestinationListID)
	if dst == nil {
		return MoveResult{}, errors.ValidationError("destinationListId", fmt.Sprintf("list %d is not on this board", m.DestinationListID))
	}
	if m.SourceIndex < 0 || m.SourceIndex >= len(src.Cards) || src.Cards[m.SourceIndex].ID != m.CardID {
		return MoveResult{}, errors.ValidationError("sourceIndex", fmt.Sprintf("card %d is not at index %d of list %d", m.CardID, m.SourceIndex, m.SourceListID))
	}

	if src == dst && m.SourceIndex == m.DestinationIndex {
		return MoveResult{Version: r.version}, nil
	}

	limit := len(dst.Cards)
	if src == dst {
		limit--
	}
	if m.DestinationIndex < 0 || m.DestinationIndex > limit {
		return MoveResult{}, errors.ValidationError("destinationIndex", fmt.Sprintf("index %d outside [0, %d]", m.DestinationIndex, limit))
	}

	before := models.CloneLists(r.lists)

	card := src.Cards[m.SourceIndex]
	src.Cards = slices.Delete(src.Cards, m.SourceIndex, m.SourceIndex+1)
	dst.Cards = slices.Insert(dst.Cards, m.DestinationIndex, card)
	src.Renumber()
	dst.Renumber()

	r.version++
	pm := pendingMove{
		kind:     gesture.TypeCard,
		entityID: m.CardID,
		position: m.DestinationIndex,
		before:   before,
		produced: r.version,
	}
	listID := m.DestinationListID

	err := r.queue.Enqueue(cardKey(m.CardID), func(qctx context.Context) {
		r.persist(qctx, pm, func(ctx context.Context) error {
			return r.persister.MoveCard(ctx, pm.entityID, listID, pm.position)
		})
	})
	if err != nil {
		r.lists = before
		r.version++
		return MoveResult{}, errClosed
	}
	r.inflight++
	r.moveSeq++

	r.logger.WithContext(ctx).Debug("card moved locally",
		zap.Int64("card_id", m.CardID),
		zap.Int64("from_list", m.SourceListID),
		zap.Int64("to_list", m.DestinationListID),
		zap.Int("position", m.DestinationIndex))

	return MoveResult{
		Applied:               true,
		DestinationAtWIPLimit: dst.AtWIPLimit(),
		Version:               r.version,
	}, nil
}

// MoveList moves a list within the board's list sequence.
func (r *Reconciler) MoveList(ctx context.Context, m ListMove) (MoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return MoveResult{}, errClosed
	}

	if m.SourceIndex < 0 || m.SourceIndex >= len(r.lists) || r.lists[m.SourceIndex].ID != m.ListID {
		return MoveResult{}, errors.ValidationError("sourceIndex", fmt.Sprintf("list %d is not at index %d", m.ListID, m.SourceIndex))
	}
	if m.SourceIndex == m.DestinationIndex {
		return MoveResult{Version: r.version}, nil
	}
	if m.DestinationIndex < 0 || m.DestinationIndex > len(r.lists)-1 {
		return MoveResult{}, errors.ValidationError("destinationIndex", fmt.Sprintf("index %d outside [0, %d]", m.DestinationIndex, len(r.lists)-1))
	}

	before := models.CloneLists(r.lists)

	moved := r.lists[m.SourceIndex]
	r.lists = slices.Delete(r.lists, m.SourceIndex, m.SourceIndex+1)
	r.lists = slices.Insert(r.lists, m.DestinationIndex, moved)

	r.version++
	pm := pendingMove{
		kind:     gesture.TypeList,
		entityID: m.ListID,
		position: m.DestinationIndex,
		before:   before,
		produced: r.version,
	}

	err := r.queue.Enqueue(listKey(m.ListID), func(qctx context.Context) {
		r.persist(qctx, pm, func(ctx context.Context) error {
			return r.persister.MoveList(ctx, pm.entityID, pm.position)
		})
	})
	if err != nil {
		r.lists = before
		r.version++
		return MoveResult{}, errClosed
	}
	r.inflight++
	r.moveSeq++

	r.logger.WithContext(ctx).Debug("list moved locally",
		zap.Int64("list_id", m.ListID),
		zap.Int("position", m.DestinationIndex))

	return MoveResult{Applied: true, Version: r.version}, nil
}

// Dispatch runs an action produced by gesture.Interpret.
func (r *Reconciler) Dispatch(ctx context.Context, a gesture.Action) (MoveResult, error) {
	switch a.Kind {
	case gesture.ActionMoveCard:
		if a.Card == nil {
			return MoveResult{}, errors.ValidationError("action", "card move without details")
		}
		return r.MoveCard(ctx, *a.Card)
	case gesture.ActionMoveList:
		if a.List == nil {
			return MoveResult{}, errors.ValidationError("action", "list move without details")
		}
		return r.MoveList(ctx, *a.List)
	default:
		return MoveResult{Version: r.Version()}, nil
	}
}

// persist runs on the entity's queue worker with a bounded timeout.
func (r *Reconciler) persist(qctx context.Context, pm pendingMove, call func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(qctx, r.moveTimeout)
	defer cancel()

	ctx, span := tracing.TraceMove(ctx, pm.kind, pm.entityID, pm.position)
	err := call(ctx)
	tracing.EndSpan(span, err)

	r.mu.Lock()
	r.inflight--
	r.mu.Unlock()
	defer r.resyncIfDrained()

	if err != nil {
		r.handleFailure(pm, errors.Wrap(err, "persist "+pm.kind+" move"))
		return
	}

	eventType := events.CardMoved
	if pm.kind == gesture.TypeList {
		eventType = events.ListMoved
	}
	r.publish(qctx, eventType, map[string]interface{}{
		"entity_id": pm.entityID,
		"position":  pm.position,
	})
}

// resyncIfDrained runs the resync a failure or an early snapshot asked for
// once no move is left in flight.
func (r *Reconciler) resyncIfDrained() {
	r.mu.Lock()
	run := r.resyncOnDrain && r.inflight == 0 && !r.closed
	if run {
		r.resyncOnDrain = false
	}
	r.mu.Unlock()
	if run {
		r.resync()
	}
}

// handleFailure restores the pre-move state when nothing changed since the
// move. Otherwise it resynchronizes from the backend, after any moves still
// queued have settled, and the view is stale until then. A closed view is
// only marked stale.
func (r *Reconciler) handleFailure(pm pendingMove, err error) {
	f := Failure{Kind: pm.kind, EntityID: pm.entityID, Position: pm.position, Err: err}

	resyncNow := false
	r.mu.Lock()
	switch {
	case r.version == pm.produced:
		r.lists = pm.before
		r.version++
		f.RolledBack = true
	case r.closed:
		r.stale = true
	case r.inflight > 0:
		r.stale = true
		r.resyncOnDrain = true
		f.ResyncQueued = true
	default:
		resyncNow = true
	}
	r.mu.Unlock()

	if resyncNow {
		f.Resynced = r.resync()
	}

	r.logger.Warn("move persistence failed",
		zap.String("kind", pm.kind),
		zap.Int64("entity_id", pm.entityID),
		zap.Bool("rolled_back", f.RolledBack),
		zap.Bool("resynced", f.Resynced),
		zap.Bool("resync_queued", f.ResyncQueued),
		zap.Error(err))

	eventType := events.MoveFailed
	if f.RolledBack {
		eventType = events.MoveRolledBack
	}
	r.publish(context.Background(), eventType, map[string]interface{}{
		"kind":        pm.kind,
		"entity_id":   pm.entityID,
		"rolled_back": f.RolledBack,
		"resynced":    f.Resynced,
		"queued":      f.ResyncQueued,
		"error":       err.Error(),
	})

	if r.onFailure != nil {
		r.onFailure(f)
	}
}

// resync replaces the board with a fresh snapshot. It reports false, leaving
// the view stale, when there is no source, the fetch fails or moves are
// queued again by the time the snapshot lands.
func (r *Reconciler) resync() bool {
	if r.source != nil {
		ctx, cancel := context.WithTimeout(context.Background(), constants.RefreshTimeout)
		defer cancel()
		err := r.Refresh(ctx)
		if err == nil {
			return !r.Stale()
		}
		r.logger.Warn("resync after failed move did not succeed", zap.Error(err))
	}
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
	return false
}

func cardKey(id int64) string {
	return "card:" + strconv.FormatInt(id, 10)
}

func listKey(id int64) string {
	return "list:" + strconv.FormatInt(id, 10)
}
