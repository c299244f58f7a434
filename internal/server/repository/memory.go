package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
)

// MemoryRepository provides in-memory board storage.
type MemoryRepository struct {
	users      map[int64]*User
	tokens     map[string]int64
	workspaces map[int64]*workspaceRecord
	boards     map[int64]*models.Board
	lists      map[int64]*listRecord
	cards      map[int64]*models.Card
	tasks      map[int64]*models.Task
	lastID     int64
	mu         sync.RWMutex
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

type workspaceRecord struct {
	workspace models.Workspace
	members   []int64
	active    bool
}

type listRecord struct {
	list     models.List
	position int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:      make(map[int64]*User),
		tokens:     make(map[string]int64),
		workspaces: make(map[int64]*workspaceRecord),
		boards:     make(map[int64]*models.Board),
		lists:      make(map[int64]*listRecord),
		cards:      make(map[int64]*models.Card),
		tasks:      make(map[int64]*models.Task),
	}
}

// Close is a no-op for in-memory repository
func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) nextID() int64 {
	r.lastID++
	return r.lastID
}

// User operations

func (r *MemoryRepository) CreateUser(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return errors.Conflict("email already registered")
		}
	}
	user.ID = r.nextID()
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, errors.NotFoundf("user with email '%s' not found", email)
}

func (r *MemoryRepository) ListUsers(ctx context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Token operations

func (r *MemoryRepository) CreateToken(ctx context.Context, token string, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return errors.NotFound("user", userID)
	}
	r.tokens[token] = userID
	return nil
}

func (r *MemoryRepository) GetUserByToken(ctx context.Context, token string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.tokens[token]
	if !ok {
		return nil, errors.Unauthorized("unknown token")
	}
	u, ok := r.users[userID]
	if !ok {
		return nil, errors.Unauthorized("unknown token")
	}
	out := *u
	return &out, nil
}

// Workspace operations

func (r *MemoryRepository) CreateWorkspace(ctx context.Context, ws *models.Workspace, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws.ID = r.nextID()
	members := []int64{ownerID}
	for _, id := range ws.UserIDs {
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	ws.UserIDs = slices.Clone(members)
	r.workspaces[ws.ID] = &workspaceRecord{workspace: *ws, members: members, active: true}
	return nil
}

func (r *MemoryRepository) GetWorkspace(ctx context.Context, id int64) (*models.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.workspaces[id]
	if !ok || !rec.active {
		return nil, errors.NotFound("workspace", id)
	}
	return rec.view(), nil
}

func (r *MemoryRepository) ListWorkspaces(ctx context.Context, userID int64) ([]*models.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Workspace
	for _, rec := range r.workspaces {
		if rec.active && slices.Contains(rec.members, userID) {
			out = append(out, rec.view())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) ListWorkspaceUsers(ctx context.Context, id int64) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.workspaces[id]
	if !ok || !rec.active {
		return nil, errors.NotFound("workspace", id)
	}
	out := make([]*User, 0, len(rec.members))
	for _, uid := range rec.members {
		if u, ok := r.users[uid]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) DeactivateWorkspace(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workspaces[id]
	if !ok {
		return errors.NotFound("workspace", id)
	}
	rec.active = false
	return nil
}

func (rec *workspaceRecord) view() *models.Workspace {
	out := rec.workspace
	out.UserIDs = slices.Clone(rec.members)
	return &out
}

// Board operations

func (r *MemoryRepository) CreateBoard(ctx context.Context, board *models.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workspaces[board.WorkspaceID]; !ok {
		return errors.NotFound("workspace", board.WorkspaceID)
	}
	board.ID = r.nextID()
	stored := *board
	stored.Lists = nil
	r.boards[board.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetBoard(ctx context.Context, id int64) (*models.Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.boards[id]
	if !ok {
		return nil, errors.NotFound("board", id)
	}
	out := *b
	return &out, nil
}

func (r *MemoryRepository) ListBoards(ctx context.Context, workspaceID int64) ([]*models.Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Board{}
	for _, b := range r.boards {
		if b.WorkspaceID == workspaceID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// List operations

func (r *MemoryRepository) CreateList(ctx context.Context, list *models.List) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.boards[list.BoardID]; !ok {
		return errors.NotFound("board", list.BoardID)
	}
	position := 0
	for _, rec := range r.lists {
		if rec.list.BoardID == list.BoardID {
			position++
		}
	}
	list.ID = r.nextID()
	stored := *list
	stored.Cards = nil
	r.lists[list.ID] = &listRecord{list: stored, position: position}
	return nil
}

func (r *MemoryRepository) GetList(ctx context.Context, id int64) (*models.List, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.lists[id]
	if !ok {
		return nil, errors.NotFound("list", id)
	}
	out := rec.list
	out.Cards = []*models.Card{}
	return &out, nil
}

func (r *MemoryRepository) UpdateList(ctx context.Context, list *models.List) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.lists[list.ID]
	if !ok {
		return errors.NotFound("list", list.ID)
	}
	rec.list.Name = list.Name
	rec.list.MaxWIP = list.MaxWIP
	return nil
}

func (r *MemoryRepository) DeleteList(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lists[id]; !ok {
		return errors.NotFound("list", id)
	}
	for cardID, c := range r.cards {
		if c.ListID == id {
			r.deleteCardLocked(cardID)
		}
	}
	delete(r.lists, id)
	return nil
}

func (r *MemoryRepository) ListLists(ctx context.Context, boardID int64) ([]*models.List, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var recs []*listRecord
	for _, rec := range r.lists {
		if rec.list.BoardID == boardID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].position != recs[j].position {
			return recs[i].position < recs[j].position
		}
		return recs[i].list.ID < recs[j].list.ID
	})
	out := make([]*models.List, 0, len(recs))
	for _, rec := range recs {
		l := rec.list
		l.Cards = []*models.Card{}
		out = append(out, &l)
	}
	return out, nil
}

func (r *MemoryRepository) SetListOrder(ctx context.Context, boardID int64, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		rec, ok := r.lists[id]
		if !ok || rec.list.BoardID != boardID {
			return errors.NotFound("list", id)
		}
	}
	for i, id := range ids {
		r.lists[id].position = i
	}
	return nil
}

// Card operations

func (r *MemoryRepository) CreateCard(ctx context.Context, card *models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lists[card.ListID]; !ok {
		return errors.NotFound("list", card.ListID)
	}
	card.ID = r.nextID()
	r.cards[card.ID] = card.Clone()
	return nil
}

func (r *MemoryRepository) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cards[id]
	if !ok {
		return nil, errors.NotFound("card", id)
	}
	return r.cardView(c), nil
}

func (r *MemoryRepository) UpdateCard(ctx context.Context, card *models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.cards[card.ID]
	if !ok {
		return errors.NotFound("card", card.ID)
	}
	updated := card.Clone()
	updated.ListID = stored.ListID
	updated.Position = stored.Position
	updated.AssignedUserName = ""
	r.cards[card.ID] = updated
	return nil
}

func (r *MemoryRepository) DeleteCard(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cards[id]; !ok {
		return errors.NotFound("card", id)
	}
	r.deleteCardLocked(id)
	return nil
}

func (r *MemoryRepository) deleteCardLocked(id int64) {
	for taskID, t := range r.tasks {
		if t.CardID == id {
			delete(r.tasks, taskID)
		}
	}
	delete(r.cards, id)
}

func (r *MemoryRepository) ListCards(ctx context.Context, listID int64) ([]*models.Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Card{}
	for _, c := range r.cards {
		if c.ListID == listID {
			out = append(out, r.cardView(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) PlaceCards(ctx context.Context, placements []CardPlacement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range placements {
		if _, ok := r.cards[p.CardID]; !ok {
			return errors.NotFound("card", p.CardID)
		}
		if _, ok := r.lists[p.ListID]; !ok {
			return errors.NotFound("list", p.ListID)
		}
	}
	for _, p := range placements {
		c := r.cards[p.CardID]
		c.ListID = p.ListID
		c.Position = p.Position
	}
	return nil
}

// cardView copies a stored card and resolves the assignee name.
func (r *MemoryRepository) cardView(c *models.Card) *models.Card {
	out := c.Clone()
	out.AssignedUserName = ""
	if c.AssignedUserID != nil {
		if u, ok := r.users[*c.AssignedUserID]; ok {
			out.AssignedUserName = u.Name
		}
	}
	return out
}

// Task operations

func (r *MemoryRepository) CreateTask(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cards[task.CardID]; !ok {
		return errors.NotFound("card", task.CardID)
	}
	task.ID = r.nextID()
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *MemoryRepository) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	return t.Clone(), nil
}

func (r *MemoryRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tasks[task.ID]
	if !ok {
		return errors.NotFound("task", task.ID)
	}
	updated := task.Clone()
	updated.CardID = stored.CardID
	r.tasks[task.ID] = updated
	return nil
}

func (r *MemoryRepository) DeleteTask(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return errors.NotFound("task", id)
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryRepository) ListTasks(ctx context.Context, cardID int64) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Task{}
	for _, t := range r.tasks {
		if t.CardID == cardID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
