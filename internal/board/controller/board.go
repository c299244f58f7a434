// Package controller orchestrates board CRUD: each operation calls the
// backend first and then applies the accepted result through the
// reconciler, which stays the only owner of board state.
package controller

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/board/reconciler"
	"github.com/lizmareco/tablero/internal/common/constants"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// taskLoadConcurrency bounds parallel task requests while opening a board.
const taskLoadConcurrency = 8

// Backend is the part of the REST client the controller needs.
type Backend interface {
	reconciler.SnapshotSource
	CreateList(ctx context.Context, req *v1.CreateListRequest) (*models.List, error)
	RenameList(ctx context.Context, listID int64, name string) error
	DeleteList(ctx context.Context, listID int64) error
	CreateCard(ctx context.Context, req *v1.CreateCardRequest) (*models.Card, error)
	UpdateCard(ctx context.Context, cardID int64, req *v1.UpdateCardRequest) (*models.Card, error)
	DeleteCard(ctx context.Context, cardID int64) error
	Tasks(ctx context.Context, cardID int64) ([]*models.Task, error)
	CreateTask(ctx context.Context, cardID int64, req *v1.CreateTaskRequest) (*models.Task, error)
	SetTaskStatus(ctx context.Context, taskID int64, status string) error
	DeleteTask(ctx context.Context, taskID int64) error
}

// CardInput describes a new card.
type CardInput struct {
	ListID      int64
	Title       string
	Description string
	Label       string
	DueDate     *time.Time
	AssigneeID  *int64
}

// TaskInput describes a new task.
type TaskInput struct {
	Name        string
	Description string
	DueDate     time.Time
}

// BoardController drives one open board.
type BoardController struct {
	backend Backend
	rec     *reconciler.Reconciler
	logger  *logger.Logger
	now     func() time.Time

	mu    sync.RWMutex
	tasks map[int64][]*models.Task // by card id
}

// NewBoardController wires a controller to the board's reconciler.
func NewBoardController(backend Backend, rec *reconciler.Reconciler, log *logger.Logger) *BoardController {
	return &BoardController{
		backend: backend,
		rec:     rec,
		logger:  log.WithComponent("board-controller").WithBoardID(rec.BoardID()),
		now:     time.Now,
		tasks:   make(map[int64][]*models.Task),
	}
}

// Reconciler returns the board state owner.
func (c *BoardController) Reconciler() *reconciler.Reconciler {
	return c.rec
}

// Open loads the board snapshot and then every card's tasks concurrently.
// Authorization failures are returned unchanged.
func (c *BoardController) Open(ctx context.Context) error {
	if err := c.rec.Refresh(ctx); err != nil {
		return err
	}

	var cardIDs []int64
	for _, l := range c.rec.Snapshot() {
		for _, card := range l.Cards {
			cardIDs = append(cardIDs, card.ID)
		}
	}

	loaded := make([][]*models.Task, len(cardIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(taskLoadConcurrency)
	for i, cardID := range cardIDs {
		g.Go(func() error {
			tasks, err := c.backend.Tasks(gctx, cardID)
			if err != nil {
				return err
			}
			loaded[i] = tasks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	c.tasks = make(map[int64][]*models.Task, len(cardIDs))
	for i, cardID := range cardIDs {
		c.tasks[cardID] = loaded[i]
	}
	c.mu.Unlock()

	c.logger.Debug("board opened", zap.Int("cards", len(cardIDs)))
	return nil
}

// CreateList appends a list. A name and a positive WIP limit are required.
func (c *BoardController) CreateList(ctx context.Context, name string, maxWIP int) (*models.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("nombre", "list name is required")
	}
	if maxWIP <= 0 {
		return nil, errors.ValidationError("maxWIP", "WIP limit must be greater than zero")
	}

	list, err := c.backend.CreateList(ctx, &v1.CreateListRequest{Nombre: name, MaxWIP: maxWIP, BoardID: c.rec.BoardID()})
	if err != nil {
		return nil, err
	}
	if err := c.rec.AddList(list); err != nil {
		return nil, err
	}
	return list, nil
}

// RenameList changes a list's name.
func (c *BoardController) RenameList(ctx context.Context, listID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.ValidationError("nombre", "list name is required")
	}
	if err := c.backend.RenameList(ctx, listID, name); err != nil {
		return err
	}
	return c.rec.RenameList(listID, name)
}

// DeleteList removes a list and forgets the tasks of its cards.
func (c *BoardController) DeleteList(ctx context.Context, listID int64) error {
	list, ok := c.rec.List(listID)
	if !ok {
		return errors.NotFound("list", listID)
	}
	if err := c.backend.DeleteList(ctx, listID); err != nil {
		return err
	}
	if err := c.rec.RemoveList(listID); err != nil {
		return err
	}

	c.mu.Lock()
	for _, card := range list.Cards {
		delete(c.tasks, card.ID)
	}
	c.mu.Unlock()
	return nil
}

// CreateCard creates a card and reloads the board. Due dates before today
// are rejected. If the reload fails for any reason other than
// authorization, the created card is appended locally instead.
func (c *BoardController) CreateCard(ctx context.Context, in CardInput) (*models.Card, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.ValidationError("nombre", "card name is required")
	}
	if _, ok := c.rec.List(in.ListID); !ok {
		return nil, errors.NotFound("list", in.ListID)
	}
	if in.DueDate != nil && in.DueDate.Before(startOfDay(c.now())) {
		return nil, errors.ValidationError("fecha_vencimiento", "due date cannot be in the past")
	}

	req := &v1.CreateCardRequest{
		Nombre:          title,
		Descripcion:     in.Description,
		Etiqueta:        strings.TrimSpace(in.Label),
		ListaID:         in.ListID,
		UsuarioAsignado: in.AssigneeID,
	}
	if in.DueDate != nil {
		req.FechaVencimiento = v1.NewDate(*in.DueDate)
	}
	card, err := c.backend.CreateCard(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tasks[card.ID] = []*models.Task{}
	c.mu.Unlock()

	if err := c.rec.Refresh(ctx); err != nil {
		if errors.IsAuth(err) {
			return nil, err
		}
		c.logger.Warn("reload after card creation failed, appending locally",
			zap.Int64("card_id", card.ID), zap.Error(err))
		if addErr := c.rec.AddCard(in.ListID, card); addErr != nil {
			return nil, addErr
		}
	}
	if current, ok := c.rec.Card(card.ID); ok {
		return current, nil
	}
	return card, nil
}

// UpdateCard changes a card's attributes.
func (c *BoardController) UpdateCard(ctx context.Context, cardID int64, req *v1.UpdateCardRequest) (*models.Card, error) {
	if _, ok := c.rec.Card(cardID); !ok {
		return nil, errors.NotFound("card", cardID)
	}
	updated, err := c.backend.UpdateCard(ctx, cardID, req)
	if err != nil {
		return nil, err
	}
	if err := c.rec.UpdateCard(updated); err != nil {
		return nil, err
	}
	current, _ := c.rec.Card(cardID)
	return current, nil
}

// DeleteCard removes a card.
func (c *BoardController) DeleteCard(ctx context.Context, cardID int64) error {
	if _, ok := c.rec.Card(cardID); !ok {
		return errors.NotFound("card", cardID)
	}
	if err := c.backend.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	if err := c.rec.RemoveCard(cardID); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.tasks, cardID)
	c.mu.Unlock()
	return nil
}

// Tasks returns copies of a card's loaded tasks.
func (c *BoardController) Tasks(cardID int64) []*models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Task, 0, len(c.tasks[cardID]))
	for _, t := range c.tasks[cardID] {
		out = append(out, t.Clone())
	}
	return out
}

// AddTask creates a task on a card.
func (c *BoardController) AddTask(ctx context.Context, cardID int64, in TaskInput) (*models.Task, error) {
	if _, ok := c.rec.Card(cardID); !ok {
		return nil, errors.NotFound("card", cardID)
	}
	req := &v1.CreateTaskRequest{
		Nombre:           strings.TrimSpace(in.Name),
		Descripcion:      strings.TrimSpace(in.Description),
		Estado:           constants.StatusOpen,
		FechaVencimiento: v1.NewDate(in.DueDate),
	}
	task, err := c.backend.CreateTask(ctx, cardID, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tasks[cardID] = append(c.tasks[cardID], task.Clone())
	c.mu.Unlock()
	return task, nil
}

// ToggleTask flips a task between open and closed and returns the new status.
func (c *BoardController) ToggleTask(ctx context.Context, taskID int64) (string, error) {
	c.mu.RLock()
	cardID, idx := c.findTask(taskID)
	var current string
	if idx >= 0 {
		current = c.tasks[cardID][idx].Status
	}
	c.mu.RUnlock()
	if idx < 0 {
		return "", errors.NotFound("task", taskID)
	}

	next := constants.StatusClosed
	if current == constants.StatusClosed {
		next = constants.StatusOpen
	}
	if err := c.backend.SetTaskStatus(ctx, taskID, next); err != nil {
		return "", err
	}

	c.mu.Lock()
	if cardID, idx := c.findTask(taskID); idx >= 0 {
		c.tasks[cardID][idx].Status = next
	}
	c.mu.Unlock()
	return next, nil
}

// DeleteTask removes a task.
func (c *BoardController) DeleteTask(ctx context.Context, taskID int64) error {
	c.mu.RLock()
	_, idx := c.findTask(taskID)
	c.mu.RUnlock()
	if idx < 0 {
		return errors.NotFound("task", taskID)
	}
	if err := c.backend.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	c.mu.Lock()
	if cardID, idx := c.findTask(taskID); idx >= 0 {
		tasks := c.tasks[cardID]
		c.tasks[cardID] = append(tasks[:idx:idx], tasks[idx+1:]...)
	}
	c.mu.Unlock()
	return nil
}

// findTask locates a task in the cache. Caller must hold c.mu.
func (c *BoardController) findTask(taskID int64) (int64, int) {
	for cardID, tasks := range c.tasks {
		for i, t := range tasks {
			if t.ID == taskID {
				return cardID, i
			}
		}
	}
	return 0, -1
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
