// Package reconciler owns the ordered view of one open board. Moves are
// applied locally before the backend confirms them; persistence runs on a
// per-entity serial queue and failed moves are rolled back or resynchronized.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lizmareco/tablero/internal/board/keyqueue"
	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/constants"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/events"
	"github.com/lizmareco/tablero/internal/events/bus"
)

// Persister sends a single move to the backend.
type Persister interface {
	MoveCard(ctx context.Context, cardID, listID int64, position int) error
	MoveList(ctx context.Context, listID int64, position int) error
}

// SnapshotSource fetches the authoritative list sequence of a board.
type SnapshotSource interface {
	FetchBoard(ctx context.Context, boardID int64) ([]*models.List, error)
}

// Failure describes a move whose persistence request did not succeed.
// RolledBack means the pre-move state was restored exactly. Resynced means
// the board was replaced by a fresh backend snapshot instead. ResyncQueued
// means other moves were still queued, so the snapshot is fetched once they
// settle. Unless RolledBack or Resynced holds, the reconciler is stale until
// the next snapshot that reflects every settled move.
type Failure struct {
	Kind         string // "card" or "list"
	EntityID     int64
	Position     int
	Err          error
	RolledBack   bool
	Resynced     bool
	ResyncQueued bool
}

// FailureHandler receives move failures. It runs on a queue worker
// goroutine and must not block for long.
type FailureHandler func(Failure)

// Options configures a Reconciler. Persister is required.
type Options struct {
	BoardID     int64
	Persister   Persister
	Source      SnapshotSource
	Bus         bus.EventBus
	OnFailure   FailureHandler
	MoveTimeout time.Duration
}

// Reconciler is safe for concurrent use.
type Reconciler struct {
	boardID     int64
	persister   Persister
	source      SnapshotSource
	bus         bus.EventBus
	onFailure   FailureHandler
	moveTimeout time.Duration

	mu      sync.RWMutex
	lists   []*models.List
	version uint64
	stale   bool
	closed  bool

	// inflight counts moves queued or being persisted; moveSeq counts moves
	// ever queued. A snapshot fetched while either changes may miss moves,
	// so resyncOnDrain asks for another fetch once inflight drops to zero.
	inflight      int
	moveSeq       uint64
	resyncOnDrain bool

	queue   *keyqueue.Queue
	refresh singleflight.Group
	logger  *logger.Logger
}

// New creates a reconciler with an empty board. Call Refresh or
// ApplyExternalSnapshot to load it.
func New(opts Options, log *logger.Logger) (*Reconciler, error) {
	if opts.Persister == nil {
		return nil, fmt.Errorf("reconciler: persister is required")
	}
	timeout := opts.MoveTimeout
	if timeout <= 0 {
		timeout = constants.MovePersistTimeout
	}
	log = log.WithComponent("reconciler").WithBoardID(opts.BoardID)
	return &Reconciler{
		boardID:     opts.BoardID,
		persister:   opts.Persister,
		source:      opts.Source,
		bus:         opts.Bus,
		onFailure:   opts.OnFailure,
		moveTimeout: timeout,
		lists:       []*models.List{},
		queue:       keyqueue.New(log),
		logger:      log,
	}, nil
}

// BoardID returns the board this reconciler tracks.
func (r *Reconciler) BoardID() int64 {
	return r.boardID
}

// Snapshot returns a deep copy of the current list sequence.
func (r *Reconciler) Snapshot() []*models.List {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.CloneLists(r.lists)
}

// Version increases on every local mutation, rollback and snapshot.
func (r *Reconciler) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Stale reports whether a failed move could be neither rolled back nor
// resynchronized. The flag clears on the next snapshot.
func (r *Reconciler) Stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale
}

// Card returns a copy of the card and the id of the list holding it.
func (r *Reconciler) Card(cardID int64) (*models.Card, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, _, c := r.findCard(cardID)
	if c == nil {
		return nil, false
	}
	return c.Clone(), true
}

// List returns a copy of the list.
func (r *Reconciler) List(listID int64) (*models.List, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, l := r.findList(listID)
	if l == nil {
		return nil, false
	}
	return l.Clone(), true
}

// ApplyExternalSnapshot replaces the whole board with a normalized copy of
// lists. Lists without a card sequence get an empty one; positions are
// recomputed from payload order. Payloads that repeat a list or card id are
// rejected and leave the current state untouched.
//
// The stale flag clears unless moves are still queued: the payload cannot
// hold them yet, so the board stays stale and is refetched once they settle.
func (r *Reconciler) ApplyExternalSnapshot(lists []*models.List) error {
	r.mu.RLock()
	seq := r.moveSeq
	r.mu.RUnlock()
	_, err := r.applySnapshot(lists, seq)
	return err
}

// applySnapshot installs lists, fetched when moveSeq was seq. refetch
// reports that moves settled after the fetch began and nothing else will
// trigger another one.
func (r *Reconciler) applySnapshot(lists []*models.List, seq uint64) (refetch bool, err error) {
	normalized, err := normalize(lists)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	r.lists = normalized
	r.version++
	behind := r.inflight > 0 || r.moveSeq != seq
	r.stale = behind
	r.resyncOnDrain = behind && r.inflight > 0
	refetch = behind && r.inflight == 0
	version := r.version
	r.mu.Unlock()

	r.logger.Debug("snapshot applied",
		zap.Int("lists", len(normalized)),
		zap.Uint64("version", version),
		zap.Bool("behind_local_moves", behind))
	r.publish(context.Background(), events.BoardRefreshed, map[string]interface{}{
		"version": version,
	})
	return refetch, nil
}

const maxRefreshFetches = 3

// Refresh fetches the board from the snapshot source and applies it.
// Concurrent calls share one fetch, which runs detached from any single
// caller so one caller giving up does not fail the others; ctx only bounds
// this caller's wait. Errors, including authorization failures, are
// returned unchanged.
func (r *Reconciler) Refresh(ctx context.Context) error {
	if r.source == nil {
		return errors.BadRequest("reconciler has no snapshot source")
	}
	done := r.refresh.DoChan("refresh", func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.RefreshTimeout)
		defer cancel()
		return nil, r.fetchAndApply(fctx)
	})
	select {
	case res := <-done:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchAndApply refetches while moves keep settling during the fetch. If
// they never stop, the board is left stale.
func (r *Reconciler) fetchAndApply(ctx context.Context) error {
	for range maxRefreshFetches {
		r.mu.RLock()
		seq := r.moveSeq
		r.mu.RUnlock()

		lists, err := r.source.FetchBoard(ctx, r.boardID)
		if err != nil {
			return err
		}
		refetch, err := r.applySnapshot(lists, seq)
		if err != nil || !refetch {
			return err
		}
	}
	r.logger.Warn("board kept changing during refresh, left stale")
	return nil
}


// Wait blocks until every queued persistence request has finished.
func (r *Reconciler) Wait(ctx context.Context) error {
	return r.queue.Wait(ctx)
}

// Close stops accepting moves and cancels in-flight persistence requests.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.queue.Close()
}

func normalize(lists []*models.List) ([]*models.List, error) {
	out := make([]*models.List, 0, len(lists))
	seenLists := make(map[int64]struct{}, len(lists))
	seenCards := make(map[int64]struct{})
	for i, l := range lists {
		if l == nil {
			return nil, errors.ValidationError(fmt.Sprintf("lists[%d]", i), "list is missing")
		}
		if _, dup := seenLists[l.ID]; dup {
			return nil, errors.ValidationError("lists", fmt.Sprintf("duplicate list id %d", l.ID))
		}
		seenLists[l.ID] = struct{}{}

		cp := l.Clone()
		kept := cp.Cards[:0]
		for j, c := range cp.Cards {
			if c == nil {
				return nil, errors.ValidationError(fmt.Sprintf("lists[%d].cards[%d]", i, j), "card is missing")
			}
			if _, dup := seenCards[c.ID]; dup {
				return nil, errors.ValidationError("cards", fmt.Sprintf("duplicate card id %d", c.ID))
			}
			seenCards[c.ID] = struct{}{}
			kept = append(kept, c)
		}
		cp.Cards = kept
		cp.Renumber()
		out = append(out, cp)
	}
	return out, nil
}

// findList returns the index and list for listID, or -1 and nil.
// Caller must hold r.mu.
func (r *Reconciler) findList(listID int64) (int, *models.List) {
	for i, l := range r.lists {
		if l.ID == listID {
			return i, l
		}
	}
	return -1, nil
}

// findCard returns the owning list, the card index and the card.
// Caller must hold r.mu.
func (r *Reconciler) findCard(cardID int64) (*models.List, int, *models.Card) {
	for _, l := range r.lists {
		if i := l.IndexOf(cardID); i >= 0 {
			return l, i, l.Cards[i]
		}
	}
	return nil, -1, nil
}

func (r *Reconciler) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if r.bus == nil {
		return
	}
	event := bus.NewEvent(eventType, "reconciler", r.boardID, data)
	if err := r.bus.Publish(ctx, events.BuildBoardSubject(r.boardID, eventType), event); err != nil {
		r.logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}
