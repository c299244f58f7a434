package reconciler

import (
	"context"
	stderrors "errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lizmareco/tablero/internal/board/gesture"
	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/events/bus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

type persistCall struct {
	Kind     string
	EntityID int64
	ListID   int64
	Position int
}

type fakePersister struct {
	mu    sync.Mutex
	calls []persistCall
	// fail decides the outcome of a call; nil means success.
	fail func(call persistCall) error
	// gate, when set, is consulted before the call returns.
	gate func(ctx context.Context, call persistCall) error
}

func (p *fakePersister) record(ctx context.Context, call persistCall) error {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	fail, gate := p.fail, p.gate
	p.mu.Unlock()

	if gate != nil {
		if err := gate(ctx, call); err != nil {
			return err
		}
	}
	if fail != nil {
		return fail(call)
	}
	return nil
}

func (p *fakePersister) MoveCard(ctx context.Context, cardID, listID int64, position int) error {
	return p.record(ctx, persistCall{Kind: "card", EntityID: cardID, ListID: listID, Position: position})
}

func (p *fakePersister) MoveList(ctx context.Context, listID int64, position int) error {
	return p.record(ctx, persistCall{Kind: "list", EntityID: listID, Position: position})
}

func (p *fakePersister) Calls() []persistCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]persistCall(nil), p.calls...)
}

type fakeSource struct {
	mu      sync.Mutex
	lists   []*models.List
	err     error
	fetches int
	gate    chan struct{}
}

func (s *fakeSource) FetchBoard(ctx context.Context, boardID int64) ([]*models.List, error) {
	s.mu.Lock()
	s.fetches++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return models.CloneLists(s.lists), nil
}

// fakeBackend applies successful moves to its own board, the way the
// server splices and renumbers, and serves that board as the snapshot.
type fakeBackend struct {
	mu    sync.Mutex
	lists []*models.List
	// before runs ahead of every move; a non-nil error rejects it.
	before func(ctx context.Context, call persistCall) error
}

func (b *fakeBackend) MoveCard(ctx context.Context, cardID, listID int64, position int) error {
	if err := b.check(ctx, persistCall{Kind: "card", EntityID: cardID, ListID: listID, Position: position}); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var card *models.Card
	for _, l := range b.lists {
		if i := l.IndexOf(cardID); i >= 0 {
			card = l.Cards[i]
			l.Cards = append(l.Cards[:i], l.Cards[i+1:]...)
			l.Renumber()
		}
	}
	for _, l := range b.lists {
		if l.ID == listID && card != nil {
			position = min(max(position, 0), len(l.Cards))
			l.Cards = append(l.Cards[:position], append([]*models.Card{card}, l.Cards[position:]...)...)
			l.Renumber()
			return nil
		}
	}
	return errors.NotFound("card", cardID)
}

func (b *fakeBackend) MoveList(ctx context.Context, listID int64, position int) error {
	if err := b.check(ctx, persistCall{Kind: "list", EntityID: listID, Position: position}); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.lists {
		if l.ID == listID {
			rest := append(b.lists[:i:i], b.lists[i+1:]...)
			position = min(max(position, 0), len(rest))
			b.lists = append(rest[:position:position], append([]*models.List{l}, rest[position:]...)...)
			return nil
		}
	}
	return errors.NotFound("list", listID)
}

func (b *fakeBackend) check(ctx context.Context, call persistCall) error {
	b.mu.Lock()
	before := b.before
	b.mu.Unlock()
	if before == nil {
		return nil
	}
	return before(ctx, call)
}

func (b *fakeBackend) FetchBoard(ctx context.Context, boardID int64) ([]*models.List, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.CloneLists(b.lists), nil
}

func (b *fakeBackend) board() []*models.List {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.CloneLists(b.lists)
}

// pendingMoves returns the number of moves not yet settled.
func (r *Reconciler) pendingMoves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inflight
}

// --- helpers ---

type listSpec struct {
	id    int64
	cards []int64
	wip   int
}

func mkLists(specs ...listSpec) []*models.List {
	out := make([]*models.List, 0, len(specs))
	for _, s := range specs {
		l := &models.List{ID: s.id, Name: "list", MaxWIP: s.wip, Cards: []*models.Card{}}
		for _, c := range s.cards {
			l.Cards = append(l.Cards, &models.Card{ID: c, Title: "card", Status: "open"})
		}
		out = append(out, l)
	}
	return out
}

// layout reduces a board to list id -> ordered card ids, in list order.
type layoutEntry struct {
	List  int64
	Cards []int64
}

func layout(lists []*models.List) []layoutEntry {
	out := make([]layoutEntry, 0, len(lists))
	for _, l := range lists {
		e := layoutEntry{List: l.ID, Cards: []int64{}}
		for _, c := range l.Cards {
			e.Cards = append(e.Cards, c.ID)
		}
		out = append(out, e)
	}
	return out
}

func assertDense(t *testing.T, lists []*models.List) {
	t.Helper()
	for _, l := range lists {
		for i, c := range l.Cards {
			if c.Position != i {
				t.Errorf("list %d: card %d has position %d at index %d", l.ID, c.ID, c.Position, i)
			}
			if c.ListID != l.ID {
				t.Errorf("card %d claims list %d but sits in list %d", c.ID, c.ListID, l.ID)
			}
		}
	}
}

type harness struct {
	r         *Reconciler
	persister *fakePersister
	failures  chan Failure
}

func newHarness(t *testing.T, source SnapshotSource, initial []*models.List, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{persister: &fakePersister{}, failures: make(chan Failure, 16)}
	o := Options{
		BoardID:     1,
		Persister:   h.persister,
		Source:      source,
		MoveTimeout: time.Second,
		OnFailure:   func(f Failure) { h.failures <- f },
	}
	for _, fn := range opts {
		fn(&o)
	}
	r, err := New(o, logger.NewNop())
	require.NoError(t, err)
	if initial != nil {
		require.NoError(t, r.ApplyExternalSnapshot(initial))
	}
	h.r = r
	t.Cleanup(func() {
		r.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Wait(ctx)
	})
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.r.Wait(ctx))
}

func (h *harness) nextFailure(t *testing.T) Failure {
	t.Helper()
	select {
	case f := <-h.failures:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("no failure reported")
		return Failure{}
	}
}

// --- tests ---

func TestNew_RequiresPersister(t *testing.T) {
	_, err := New(Options{BoardID: 1}, logger.NewNop())
	assert.Error(t, err)
}

func TestMoveCard_CrossList(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1, 2, 3}}, listSpec{id: 2, cards: []int64{4}}))

	res, err := h.r.MoveCard(context.Background(), CardMove{CardID: 2, SourceListID: 1, SourceIndex: 1, DestinationListID: 2, DestinationIndex: 1})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	got := h.r.Snapshot()
	want := []layoutEntry{{List: 1, Cards: []int64{1, 3}}, {List: 2, Cards: []int64{4, 2}}}
	if diff := cmp.Diff(want, layout(got)); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}
	assertDense(t, got)

	h.wait(t)
	assert.Equal(t, []persistCall{{Kind: "card", EntityID: 2, ListID: 2, Position: 1}}, h.persister.Calls())
}

func TestMoveCard_SpliceWithinList(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{10, 11, 12}}))

	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 10, SourceListID: 1, SourceIndex: 0, DestinationListID: 1, DestinationIndex: 2})
	require.NoError(t, err)

	want := []layoutEntry{{List: 1, Cards: []int64{11, 12, 10}}}
	if diff := cmp.Diff(want, layout(h.r.Snapshot())); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	assertDense(t, h.r.Snapshot())
}

func TestMoveList_Splice(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1}, listSpec{id: 2}, listSpec{id: 3}))

	res, err := h.r.MoveList(context.Background(), ListMove{ListID: 1, SourceIndex: 0, DestinationIndex: 2})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	got := layout(h.r.Snapshot())
	assert.Equal(t, []int64{2, 3, 1}, []int64{got[0].List, got[1].List, got[2].List})

	h.wait(t)
	assert.Equal(t, []persistCall{{Kind: "list", EntityID: 1, Position: 2}}, h.persister.Calls())
}

func TestMoveCard_NoopLeavesStateIdentical(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2}))

	before := h.r.Snapshot()
	version := h.r.Version()

	res, err := h.r.MoveCard(context.Background(), CardMove{CardID: 2, SourceListID: 1, SourceIndex: 1, DestinationListID: 1, DestinationIndex: 1})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	listRes, err := h.r.MoveList(context.Background(), ListMove{ListID: 2, SourceIndex: 1, DestinationIndex: 1})
	require.NoError(t, err)
	assert.False(t, listRes.Applied)

	h.wait(t)
	if diff := cmp.Diff(before, h.r.Snapshot()); diff != "" {
		t.Errorf("no-op changed state (-before +after):\n%s", diff)
	}
	assert.Equal(t, version, h.r.Version())
	assert.Empty(t, h.persister.Calls())
}

func TestMoveCard_RollbackOnFailure(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2}))
	h.persister.fail = func(persistCall) error { return errors.InternalError("backend rejected move", nil) }

	before := h.r.Snapshot()

	// Hold the request until the optimistic state has been checked.
	release := make(chan struct{})
	h.persister.gate = func(ctx context.Context, _ persistCall) error {
		<-release
		return nil
	}

	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)

	optimistic := []layoutEntry{{List: 1, Cards: []int64{2}}, {List: 2, Cards: []int64{1}}}
	if diff := cmp.Diff(optimistic, layout(h.r.Snapshot())); diff != "" {
		t.Fatalf("optimistic layout mismatch (-want +got):\n%s", diff)
	}

	close(release)
	f := h.nextFailure(t)
	h.wait(t)

	assert.True(t, f.RolledBack)
	assert.False(t, f.Resynced)
	assert.Equal(t, int64(1), f.EntityID)
	assert.Equal(t, "card", f.Kind)
	assert.Equal(t, errors.ErrCodeInternalError, errors.Code(f.Err))

	if diff := cmp.Diff(before, h.r.Snapshot()); diff != "" {
		t.Errorf("state after rollback differs from pre-move snapshot (-want +got):\n%s", diff)
	}
	assert.False(t, h.r.Stale())
}

func TestMoveList_RollbackOnFailure(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1}, listSpec{id: 2}, listSpec{id: 3}))
	h.persister.fail = func(persistCall) error { return stderrors.New("connection reset") }
	before := h.r.Snapshot()

	_, err := h.r.MoveList(context.Background(), ListMove{ListID: 3, SourceIndex: 2, DestinationIndex: 0})
	require.NoError(t, err)

	f := h.nextFailure(t)
	h.wait(t)
	assert.True(t, f.RolledBack)
	if diff := cmp.Diff(before, h.r.Snapshot()); diff != "" {
		t.Errorf("list rollback mismatch (-want +got):\n%s", diff)
	}
}

func TestMoveCard_TimeoutCountsAsFailure(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1}}, listSpec{id: 2}),
		func(o *Options) { o.MoveTimeout = 20 * time.Millisecond })
	h.persister.gate = func(ctx context.Context, _ persistCall) error {
		<-ctx.Done()
		return ctx.Err()
	}
	before := h.r.Snapshot()

	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)

	f := h.nextFailure(t)
	h.wait(t)
	assert.True(t, f.RolledBack)
	assert.True(t, errors.IsUnavailable(f.Err), "timeout should map to SERVICE_UNAVAILABLE, got %v", f.Err)
	assert.ErrorIs(t, f.Err, context.DeadlineExceeded)
	if diff := cmp.Diff(before, h.r.Snapshot()); diff != "" {
		t.Errorf("state after timeout differs (-want +got):\n%s", diff)
	}
}

func TestMoveCard_FailureAfterLaterMoveResyncs(t *testing.T) {
	server := mkLists(listSpec{id: 1, cards: []int64{2}}, listSpec{id: 2, cards: []int64{1, 3}})
	source := &fakeSource{lists: server}
	h := newHarness(t, source, mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2, cards: []int64{3}}))

	release := make(chan struct{})
	h.persister.gate = func(ctx context.Context, call persistCall) error {
		if call.EntityID == 1 {
			<-release
			return errors.Conflict("list changed underneath")
		}
		return nil
	}

	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)
	_, err = h.r.MoveCard(context.Background(), CardMove{CardID: 3, SourceListID: 2, SourceIndex: 1, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.r.pendingMoves() == 1 }, time.Second, time.Millisecond)

	close(release)
	f := h.nextFailure(t)
	h.wait(t)

	assert.False(t, f.RolledBack)
	assert.True(t, f.Resynced)
	assert.True(t, errors.IsConflict(f.Err))
	if diff := cmp.Diff(layout(server), layout(h.r.Snapshot())); diff != "" {
		t.Errorf("expected backend snapshot after resync (-want +got):\n%s", diff)
	}
	assert.False(t, h.r.Stale())
}

func TestMoveCard_FailureWithoutSourceMarksStale(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2}))

	release := make(chan struct{})
	h.persister.gate = func(ctx context.Context, call persistCall) error {
		if call.EntityID == 1 {
			<-release
			return stderrors.New("boom")
		}
		return nil
	}

	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)
	_, err = h.r.MoveCard(context.Background(), CardMove{CardID: 2, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 1})
	require.NoError(t, err)
	afterSecond := h.r.Snapshot()

	close(release)
	f := h.nextFailure(t)
	h.wait(t)

	assert.False(t, f.RolledBack)
	assert.False(t, f.Resynced)
	assert.True(t, h.r.Stale())
	if diff := cmp.Diff(afterSecond, h.r.Snapshot()); diff != "" {
		t.Errorf("later move was clobbered (-want +got):\n%s", diff)
	}

	require.NoError(t, h.r.ApplyExternalSnapshot(mkLists(listSpec{id: 1}, listSpec{id: 2, cards: []int64{1, 2}})))
	assert.False(t, h.r.Stale())
}

func TestMoveCard_FailureResyncsAfterQueuedMovesSettle(t *testing.T) {
	initial := mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2})
	backend := &fakeBackend{lists: models.CloneLists(initial)}

	release := make(chan struct{})
	var calls int
	backend.before = func(ctx context.Context, call persistCall) error {
		calls++
		if calls == 1 {
			<-release
			return errors.Conflict("list changed underneath")
		}
		return nil
	}
	h := newHarness(t, backend, initial, func(o *Options) { o.Persister = backend })

	// The second move of the same card queues behind the first, which fails.
	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)
	_, err = h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 2, SourceIndex: 0, DestinationListID: 1, DestinationIndex: 1})
	require.NoError(t, err)

	close(release)
	f := h.nextFailure(t)
	h.wait(t)

	assert.False(t, f.RolledBack)
	assert.False(t, f.Resynced)
	assert.True(t, f.ResyncQueued)

	want := []layoutEntry{{List: 1, Cards: []int64{2, 1}}, {List: 2, Cards: []int64{}}}
	if diff := cmp.Diff(want, layout(backend.board())); diff != "" {
		t.Fatalf("backend layout mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, layout(h.r.Snapshot())); diff != "" {
		t.Errorf("local board diverged from backend (-want +got):\n%s", diff)
	}
	assertDense(t, h.r.Snapshot())
	assert.False(t, h.r.Stale())
}

func TestRefresh_WhileMovesQueuedRefetchesAfterSettle(t *testing.T) {
	initial := mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2})
	backend := &fakeBackend{lists: models.CloneLists(initial)}

	release := make(chan struct{})
	backend.before = func(ctx context.Context, call persistCall) error {
		<-release
		return nil
	}
	h := newHarness(t, backend, initial, func(o *Options) { o.Persister = backend })

	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)

	// The backend has not seen the move yet, so this snapshot is behind.
	require.NoError(t, h.r.Refresh(context.Background()))
	assert.True(t, h.r.Stale())

	close(release)
	h.wait(t)

	want := []layoutEntry{{List: 1, Cards: []int64{2}}, {List: 2, Cards: []int64{1}}}
	if diff := cmp.Diff(want, layout(h.r.Snapshot())); diff != "" {
		t.Errorf("local board diverged from backend (-want +got):\n%s", diff)
	}
	assert.False(t, h.r.Stale())
}

func TestMoveCard_FailureAfterCloseSkipsResync(t *testing.T) {
	source := &fakeSource{lists: mkLists(listSpec{id: 1}, listSpec{id: 2, cards: []int64{1, 2}})}
	h := newHarness(t, source, mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2}))

	started := make(chan struct{})
	h.persister.gate = func(ctx context.Context, call persistCall) error {
		if call.EntityID == 1 {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)
	_, err = h.r.MoveCard(context.Background(), CardMove{CardID: 2, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 1})
	require.NoError(t, err)
	<-started

	h.r.Close()
	f := h.nextFailure(t)
	h.wait(t)

	assert.False(t, f.RolledBack)
	assert.False(t, f.Resynced)
	assert.False(t, f.ResyncQueued)
	assert.True(t, h.r.Stale())
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Zero(t, source.fetches)
}

func TestMoveCard_SameCardRequestsAreSerialized(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1, 2, 3}}, listSpec{id: 2}))

	var mu sync.Mutex
	active, maxActive := 0, 0
	h.persister.gate = func(ctx context.Context, call persistCall) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}

	ctx := context.Background()
	moves := []CardMove{
		{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0},
		{CardID: 1, SourceListID: 2, SourceIndex: 0, DestinationListID: 1, DestinationIndex: 2},
		{CardID: 1, SourceListID: 1, SourceIndex: 2, DestinationListID: 1, DestinationIndex: 0},
		{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0},
	}
	for _, m := range moves {
		_, err := h.r.MoveCard(ctx, m)
		require.NoError(t, err)
	}
	h.wait(t)

	want := []persistCall{
		{Kind: "card", EntityID: 1, ListID: 2, Position: 0},
		{Kind: "card", EntityID: 1, ListID: 1, Position: 2},
		{Kind: "card", EntityID: 1, ListID: 1, Position: 0},
		{Kind: "card", EntityID: 1, ListID: 2, Position: 0},
	}
	if diff := cmp.Diff(want, h.persister.Calls()); diff != "" {
		t.Errorf("persistence order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, maxActive)
}

func TestMoveCard_ValidationFailsFast(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2, cards: []int64{3}}))
	before := h.r.Snapshot()

	tests := []struct {
		name string
		move CardMove
	}{
		{"unknown source list", CardMove{CardID: 1, SourceListID: 9, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0}},
		{"unknown destination list", CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 9, DestinationIndex: 0}},
		{"card not at source index", CardMove{CardID: 1, SourceListID: 1, SourceIndex: 1, DestinationListID: 2, DestinationIndex: 0}},
		{"source index out of range", CardMove{CardID: 1, SourceListID: 1, SourceIndex: 5, DestinationListID: 2, DestinationIndex: 0}},
		{"destination past end", CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 2}},
		{"same list past end after removal", CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 1, DestinationIndex: 2}},
		{"negative destination", CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.r.MoveCard(context.Background(), tt.move)
			if !errors.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	_, err := h.r.MoveList(context.Background(), ListMove{ListID: 2, SourceIndex: 0, DestinationIndex: 1})
	assert.True(t, errors.IsValidation(err), "list not at source index")
	_, err = h.r.MoveList(context.Background(), ListMove{ListID: 1, SourceIndex: 0, DestinationIndex: 2})
	assert.True(t, errors.IsValidation(err), "list destination past end")

	h.wait(t)
	assert.Empty(t, h.persister.Calls())
	if diff := cmp.Diff(before, h.r.Snapshot()); diff != "" {
		t.Errorf("rejected moves changed state (-before +after):\n%s", diff)
	}
}

func TestMoveCard_WIPLimitIsAdvisory(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1}}, listSpec{id: 2, cards: []int64{2, 3}, wip: 2}))

	res, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 2})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.DestinationAtWIPLimit)
	assert.Equal(t, []int64{2, 3, 1}, layout(h.r.Snapshot())[1].Cards)
}

func TestMoves_ConserveIdentifiersAndDensity(t *testing.T) {
	h := newHarness(t, nil, mkLists(
		listSpec{id: 1, cards: []int64{1, 2, 3, 4}},
		listSpec{id: 2, cards: []int64{5, 6}},
		listSpec{id: 3},
		listSpec{id: 4, cards: []int64{7, 8, 9}},
	))
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	wantCards := map[int64]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true, 9: true}
	wantLists := map[int64]bool{1: true, 2: true, 3: true, 4: true}

	for step := 0; step < 300; step++ {
		lists := h.r.Snapshot()
		if rng.Intn(4) == 0 {
			src := rng.Intn(len(lists))
			dst := rng.Intn(len(lists))
			_, err := h.r.MoveList(ctx, ListMove{ListID: lists[src].ID, SourceIndex: src, DestinationIndex: dst})
			require.NoError(t, err)
		} else {
			src := lists[rng.Intn(len(lists))]
			if len(src.Cards) == 0 {
				continue
			}
			dst := lists[rng.Intn(len(lists))]
			si := rng.Intn(len(src.Cards))
			limit := len(dst.Cards)
			if dst.ID == src.ID {
				limit--
			}
			di := rng.Intn(limit + 1)
			_, err := h.r.MoveCard(ctx, CardMove{CardID: src.Cards[si].ID, SourceListID: src.ID, SourceIndex: si, DestinationListID: dst.ID, DestinationIndex: di})
			require.NoError(t, err)
		}

		after := h.r.Snapshot()
		assertDense(t, after)
		gotCards := map[int64]bool{}
		gotLists := map[int64]bool{}
		for _, l := range after {
			require.False(t, gotLists[l.ID], "list %d duplicated at step %d", l.ID, step)
			gotLists[l.ID] = true
			for _, c := range l.Cards {
				require.False(t, gotCards[c.ID], "card %d duplicated at step %d", c.ID, step)
				gotCards[c.ID] = true
			}
		}
		require.Equal(t, wantCards, gotCards, "card identifiers changed at step %d", step)
		require.Equal(t, wantLists, gotLists, "list identifiers changed at step %d", step)
	}
	h.wait(t)
}

func TestApplyExternalSnapshot(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1}}, listSpec{id: 2, cards: []int64{2}}))

	t.Run("replaces everything and normalizes missing cards", func(t *testing.T) {
		payload := []*models.List{
			{ID: 3, Name: "new", Cards: []*models.Card{{ID: 5, Position: 7}, {ID: 6, Position: 0}}},
			{ID: 4, Name: "empty"},
		}
		require.NoError(t, h.r.ApplyExternalSnapshot(payload))

		got := h.r.Snapshot()
		want := []layoutEntry{{List: 3, Cards: []int64{5, 6}}, {List: 4, Cards: []int64{}}}
		if diff := cmp.Diff(want, layout(got)); diff != "" {
			t.Fatalf("layout mismatch (-want +got):\n%s", diff)
		}
		assert.NotNil(t, got[1].Cards)
		assertDense(t, got)

		// The payload is copied, not aliased.
		payload[0].Cards[0].Title = "mutated"
		c, ok := h.r.Card(5)
		require.True(t, ok)
		assert.NotEqual(t, "mutated", c.Title)
	})

	t.Run("rejects duplicate identifiers", func(t *testing.T) {
		before := h.r.Snapshot()
		err := h.r.ApplyExternalSnapshot(mkLists(listSpec{id: 1}, listSpec{id: 1}))
		assert.True(t, errors.IsValidation(err))
		err = h.r.ApplyExternalSnapshot(mkLists(listSpec{id: 1, cards: []int64{9}}, listSpec{id: 2, cards: []int64{9}}))
		assert.True(t, errors.IsValidation(err))
		err = h.r.ApplyExternalSnapshot([]*models.List{nil})
		assert.True(t, errors.IsValidation(err))
		if diff := cmp.Diff(before, h.r.Snapshot()); diff != "" {
			t.Errorf("rejected snapshot changed state (-before +after):\n%s", diff)
		}
	})
}

func TestFilterCards_IsPure(t *testing.T) {
	lists := mkLists(listSpec{id: 1, cards: []int64{1, 2, 3}}, listSpec{id: 2, cards: []int64{4}})
	lists[0].Cards[0].AssignedUserName = "ana"
	lists[0].Cards[0].Label = "Bug"
	lists[0].Cards[2].AssignedUserName = "ana"
	lists[0].Cards[2].Label = "feature"
	lists[1].Cards[0].AssignedUserName = "luis"
	lists[1].Cards[0].Label = " bug "
	h := newHarness(t, nil, lists)

	before := h.r.Snapshot()

	byAna := h.r.FilterCards(Filter{AssigneeName: "ana"}.Match)
	byBug := h.r.FilterCards(Filter{Label: "BUG"}.Match)

	if diff := cmp.Diff([]layoutEntry{{List: 1, Cards: []int64{1, 3}}, {List: 2, Cards: []int64{}}}, layout(byAna)); diff != "" {
		t.Errorf("assignee filter mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]layoutEntry{{List: 1, Cards: []int64{1}}, {List: 2, Cards: []int64{4}}}, layout(byBug)); diff != "" {
		t.Errorf("label filter mismatch (-want +got):\n%s", diff)
	}
	// Filtered cards keep their stored position.
	assert.Equal(t, 2, byAna[0].Cards[1].Position)

	byAna[0].Cards[0].Title = "mutated"
	if diff := cmp.Diff(before, h.r.Snapshot()); diff != "" {
		t.Errorf("filtering changed stored state (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(layout(before), layout(h.r.FilterCards(nil))); diff != "" {
		t.Errorf("nil predicate should keep every card (-want +got):\n%s", diff)
	}
}

func TestFilterOptions_FirstSeenOrder(t *testing.T) {
	lists := mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2, cards: []int64{3, 4}})
	lists[0].Cards[0].AssignedUserName, lists[0].Cards[0].Label = "luis", "ops"
	lists[0].Cards[1].AssignedUserName, lists[0].Cards[1].Label = "ana", ""
	lists[1].Cards[0].AssignedUserName, lists[1].Cards[0].Label = "luis", "bug"
	lists[1].Cards[1].AssignedUserName, lists[1].Cards[1].Label = "", "ops"
	h := newHarness(t, nil, lists)

	assignees, labels := h.r.FilterOptions()
	assert.Equal(t, []string{"luis", "ana"}, assignees)
	assert.Equal(t, []string{"ops", "bug"}, labels)
}

func TestRefresh(t *testing.T) {
	t.Run("requires a source", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		assert.Error(t, h.r.Refresh(context.Background()))
	})

	t.Run("authorization errors pass through", func(t *testing.T) {
		source := &fakeSource{err: errors.Unauthorized("token expired")}
		h := newHarness(t, source, mkLists(listSpec{id: 1}))
		err := h.r.Refresh(context.Background())
		assert.True(t, errors.IsAuth(err))
		assert.Equal(t, []layoutEntry{{List: 1, Cards: []int64{}}}, layout(h.r.Snapshot()))
	})

	t.Run("a cancelled caller does not fail the shared fetch", func(t *testing.T) {
		gate := make(chan struct{})
		source := &fakeSource{lists: mkLists(listSpec{id: 4}), gate: gate}
		h := newHarness(t, source, nil)

		ctx, cancel := context.WithCancel(context.Background())
		first := make(chan error, 1)
		go func() { first <- h.r.Refresh(ctx) }()
		require.Eventually(t, func() bool {
			source.mu.Lock()
			defer source.mu.Unlock()
			return source.fetches == 1
		}, time.Second, time.Millisecond)

		second := make(chan error, 1)
		go func() { second <- h.r.Refresh(context.Background()) }()
		time.Sleep(10 * time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-first, context.Canceled)
		close(gate)
		assert.NoError(t, <-second)
		assert.Equal(t, int64(4), h.r.Snapshot()[0].ID)
		assert.False(t, h.r.Stale())
	})

	t.Run("concurrent calls share one fetch", func(t *testing.T) {
		gate := make(chan struct{})
		source := &fakeSource{lists: mkLists(listSpec{id: 7}), gate: gate}
		h := newHarness(t, source, nil)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, h.r.Refresh(context.Background()))
			}()
		}
		require.Eventually(t, func() bool {
			source.mu.Lock()
			defer source.mu.Unlock()
			return source.fetches == 1
		}, time.Second, time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		close(gate)
		wg.Wait()

		source.mu.Lock()
		fetches := source.fetches
		source.mu.Unlock()
		assert.LessOrEqual(t, fetches, 2)
		assert.Equal(t, int64(7), h.r.Snapshot()[0].ID)
	})
}

func TestDispatch(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1, 2}}, listSpec{id: 2}))

	action, err := gesture.Interpret(gesture.DragResult{
		DraggableID: "2",
		Type:        gesture.TypeCard,
		Source:      gesture.Location{DroppableID: "1", Index: 1},
		Destination: &gesture.Location{DroppableID: "2", Index: 0},
	})
	require.NoError(t, err)

	res, err := h.r.Dispatch(context.Background(), action)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = h.r.Dispatch(context.Background(), gesture.Noop)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	listAction, err := gesture.Interpret(gesture.DragResult{
		DraggableID: gesture.ListDraggableID(2),
		Type:        gesture.TypeList,
		Source:      gesture.Location{DroppableID: gesture.BoardDroppableID, Index: 1},
		Destination: &gesture.Location{DroppableID: gesture.BoardDroppableID, Index: 0},
	})
	require.NoError(t, err)
	_, err = h.r.Dispatch(context.Background(), listAction)
	require.NoError(t, err)

	want := []layoutEntry{{List: 2, Cards: []int64{2}}, {List: 1, Cards: []int64{1}}}
	if diff := cmp.Diff(want, layout(h.r.Snapshot())); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestCRUDEntryPoints(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1, 2, 3}}))

	require.NoError(t, h.r.AddList(&models.List{ID: 2, Name: "Done", MaxWIP: 4}))
	assert.True(t, errors.IsConflict(h.r.AddList(&models.List{ID: 2})))

	require.NoError(t, h.r.AddCard(2, &models.Card{ID: 4, Title: "new"}))
	assert.True(t, errors.IsConflict(h.r.AddCard(2, &models.Card{ID: 1})))
	assert.True(t, errors.IsNotFound(h.r.AddCard(9, &models.Card{ID: 10})))

	require.NoError(t, h.r.RemoveCard(2))
	assert.True(t, errors.IsNotFound(h.r.RemoveCard(2)))

	require.NoError(t, h.r.UpdateCard(&models.Card{ID: 3, Title: "renamed", ListID: 99, Position: 42}))
	c, ok := h.r.Card(3)
	require.True(t, ok)
	assert.Equal(t, "renamed", c.Title)
	assert.Equal(t, int64(1), c.ListID)
	assert.Equal(t, 1, c.Position)

	require.NoError(t, h.r.RenameList(2, "Hecho"))
	l, ok := h.r.List(2)
	require.True(t, ok)
	assert.Equal(t, "Hecho", l.Name)

	want := []layoutEntry{{List: 1, Cards: []int64{1, 3}}, {List: 2, Cards: []int64{4}}}
	if diff := cmp.Diff(want, layout(h.r.Snapshot())); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	assertDense(t, h.r.Snapshot())

	require.NoError(t, h.r.RemoveList(1))
	assert.True(t, errors.IsNotFound(h.r.RemoveList(1)))
	_, ok = h.r.Card(1)
	assert.False(t, ok)
}

func TestFailuresArePublished(t *testing.T) {
	memBus := bus.NewMemoryEventBus(logger.NewNop())
	defer memBus.Close()

	received := make(chan *bus.Event, 4)
	_, err := memBus.Subscribe("boards.1.move.*", func(ctx context.Context, e *bus.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1}}, listSpec{id: 2}),
		func(o *Options) { o.Bus = memBus })
	h.persister.fail = func(persistCall) error { return stderrors.New("down") }

	_, err = h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	require.NoError(t, err)
	h.nextFailure(t)

	select {
	case e := <-received:
		assert.Equal(t, "move.rolled_back", e.Type)
		assert.Equal(t, true, e.Data["rolled_back"])
	case <-time.After(2 * time.Second):
		t.Fatal("rollback event not published")
	}
}

func TestClose_RejectsMoves(t *testing.T) {
	h := newHarness(t, nil, mkLists(listSpec{id: 1, cards: []int64{1}}, listSpec{id: 2}))
	h.r.Close()

	before := h.r.Snapshot()
	_, err := h.r.MoveCard(context.Background(), CardMove{CardID: 1, SourceListID: 1, SourceIndex: 0, DestinationListID: 2, DestinationIndex: 0})
	assert.Error(t, err)
	if diff := cmp.Diff(before, h.r.Snapshot()); diff != "" {
		t.Errorf("rejected move changed state (-before +after):\n%s", diff)
	}
}
