package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// FetchBoard returns the board's lists in display order. It implements
// reconciler.SnapshotSource.
func (c *Client) FetchBoard(ctx context.Context, boardID int64) ([]*models.List, error) {
	if err := requireID("boardId", boardID); err != nil {
		return nil, err
	}
	var payload []*v1.List
	if err := c.do(ctx, "GET", "/lists/board/"+id(boardID), nil, &payload); err != nil {
		return nil, err
	}
	if err := v1.ValidateEach(payload); err != nil {
		return nil, invalid(err)
	}
	lists := make([]*models.List, 0, len(payload))
	for _, l := range payload {
		m := models.ListFromAPI(l)
		if m.BoardID == 0 {
			m.BoardID = boardID
		}
		lists = append(lists, m)
	}
	return lists, nil
}

// MoveCard persists a card move. It implements reconciler.Persister.
func (c *Client) MoveCard(ctx context.Context, cardID, listID int64, position int) error {
	req := &v1.MoveCardRequest{ListID: listID, Position: &position}
	if err := v1.Validate(req); err != nil {
		return invalid(err)
	}
	return c.do(ctx, "PUT", "/cards/"+id(cardID)+"/move", req, nil)
}

// MoveList persists a list move. It implements reconciler.Persister.
func (c *Client) MoveList(ctx context.Context, listID int64, position int) error {
	req := &v1.MoveListRequest{Position: &position}
	if err := v1.Validate(req); err != nil {
		return invalid(err)
	}
	return c.do(ctx, "PUT", "/lists/"+id(listID)+"/move", req, nil)
}

// ListBoards returns the boards of a workspace.
func (c *Client) ListBoards(ctx context.Context, workspaceID int64) ([]*models.Board, error) {
	if err := requireID("workspaceId", workspaceID); err != nil {
		return nil, err
	}
	var payload []*v1.Board
	path := "/boards?" + url.Values{"workspaceId": {id(workspaceID)}}.Encode()
	if err := c.do(ctx, "GET", path, nil, &payload); err != nil {
		return nil, err
	}
	if err := v1.ValidateEach(payload); err != nil {
		return nil, invalid(err)
	}
	out := make([]*models.Board, 0, len(payload))
	for _, b := range payload {
		out = append(out, models.BoardFromAPI(b))
	}
	return out, nil
}

// CreateBoard creates a board in a workspace.
func (c *Client) CreateBoard(ctx context.Context, req *v1.CreateBoardRequest) (*models.Board, error) {
	if err := v1.Validate(req); err != nil {
		return nil, invalid(err)
	}
	var created v1.Board
	if err := c.do(ctx, "POST", "/boards", req, &created); err != nil {
		return nil, err
	}
	if err := v1.Validate(&created); err != nil {
		return nil, invalid(err)
	}
	return models.BoardFromAPI(&created), nil
}

// CreateList creates a list at the end of a board.
func (c *Client) CreateList(ctx context.Context, req *v1.CreateListRequest) (*models.List, error) {
	if err := v1.Validate(req); err != nil {
		return nil, invalid(err)
	}
	var created v1.List
	if err := c.do(ctx, "POST", "/lists", req, &created); err != nil {
		return nil, err
	}
	if err := v1.Validate(&created); err != nil {
		return nil, invalid(err)
	}
	l := models.ListFromAPI(&created)
	if l.BoardID == 0 {
		l.BoardID = req.BoardID
	}
	if l.MaxWIP == 0 {
		l.MaxWIP = req.MaxWIP
	}
	return l, nil
}

// RenameList changes a list's name.
func (c *Client) RenameList(ctx context.Context, listID int64, name string) error {
	req := &v1.UpdateListRequest{Nombre: name}
	if err := v1.Validate(req); err != nil {
		return invalid(err)
	}
	return c.do(ctx, "PUT", "/lists/"+id(listID), req, nil)
}

// DeleteList deletes a list and its cards.
func (c *Client) DeleteList(ctx context.Context, listID int64) error {
	return c.do(ctx, "DELETE", "/lists/"+id(listID), nil, nil)
}

// CreateCard creates a card at the end of its list.
func (c *Client) CreateCard(ctx context.Context, req *v1.CreateCardRequest) (*models.Card, error) {
	if err := v1.Validate(req); err != nil {
		return nil, invalid(err)
	}
	var created v1.Card
	if err := c.do(ctx, "POST", "/cards", req, &created); err != nil {
		return nil, err
	}
	if err := v1.Validate(&created); err != nil {
		return nil, invalid(err)
	}
	card := models.CardFromAPI(&created)
	if card.ListID == 0 {
		card.ListID = req.ListaID
	}
	return card, nil
}

// UpdateCard changes card attributes. Position and list are never sent.
func (c *Client) UpdateCard(ctx context.Context, cardID int64, req *v1.UpdateCardRequest) (*models.Card, error) {
	if err := v1.Validate(req); err != nil {
		return nil, invalid(err)
	}
	var updated v1.Card
	if err := c.do(ctx, "PUT", "/cards/"+id(cardID), req, &updated); err != nil {
		return nil, err
	}
	if err := v1.Validate(&updated); err != nil {
		return nil, invalid(err)
	}
	return models.CardFromAPI(&updated), nil
}

// DeleteCard deletes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID int64) error {
	return c.do(ctx, "DELETE", "/cards/"+id(cardID), nil, nil)
}

// Tasks returns a card's tasks.
func (c *Client) Tasks(ctx context.Context, cardID int64) ([]*models.Task, error) {
	var payload []*v1.Task
	if err := c.do(ctx, "GET", "/cards/"+id(cardID)+"/tasks", nil, &payload); err != nil {
		return nil, err
	}
	if err := v1.ValidateEach(payload); err != nil {
		return nil, invalid(err)
	}
	out := make([]*models.Task, 0, len(payload))
	for _, t := range payload {
		task := models.TaskFromAPI(t)
		if task.CardID == 0 {
			task.CardID = cardID
		}
		out = append(out, task)
	}
	return out, nil
}

// CreateTask adds a task to a card.
func (c *Client) CreateTask(ctx context.Context, cardID int64, req *v1.CreateTaskRequest) (*models.Task, error) {
	if err := v1.Validate(req); err != nil {
		return nil, invalid(err)
	}
	var created v1.Task
	if err := c.do(ctx, "POST", "/cards/"+id(cardID)+"/tasks", req, &created); err != nil {
		return nil, err
	}
	if err := v1.Validate(&created); err != nil {
		return nil, invalid(err)
	}
	task := models.TaskFromAPI(&created)
	if task.CardID == 0 {
		task.CardID = cardID
	}
	return task, nil
}

// SetTaskStatus changes a task's status to open or closed.
func (c *Client) SetTaskStatus(ctx context.Context, taskID int64, status string) error {
	req := &v1.UpdateTaskRequest{Estado: status}
	if err := v1.Validate(req); err != nil {
		return invalid(err)
	}
	return c.do(ctx, "PUT", "/cards/tasks/"+id(taskID), req, nil)
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	return c.do(ctx, "DELETE", "/cards/tasks/"+id(taskID), nil, nil)
}

// Dashboard returns the per-list card counts of a board.
func (c *Client) Dashboard(ctx context.Context, boardID int64) ([]*models.StatEntry, error) {
	if err := requireID("boardId", boardID); err != nil {
		return nil, err
	}
	var payload []*v1.StatEntry
	if err := c.do(ctx, "GET", "/dashboard/"+id(boardID), nil, &payload); err != nil {
		return nil, err
	}
	if err := v1.ValidateEach(payload); err != nil {
		return nil, invalid(err)
	}
	out := make([]*models.StatEntry, 0, len(payload))
	for _, s := range payload {
		out = append(out, &models.StatEntry{Name: s.Name, Value: s.Value, Color: s.Color})
	}
	return out, nil
}

// NewCardRequest builds a create-card payload. Due dates are sent as
// calendar dates.
func NewCardRequest(listID int64, title, description, label string, due *time.Time, assignee *int64) *v1.CreateCardRequest {
	req := &v1.CreateCardRequest{
		Nombre:          title,
		Descripcion:     description,
		Etiqueta:        label,
		ListaID:         listID,
		UsuarioAsignado: assignee,
	}
	if due != nil {
		req.FechaVencimiento = v1.NewDate(*due)
	}
	return req
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

// requireID rejects non-positive identifiers before a request is sent.
func requireID(field string, v int64) error {
	if v <= 0 {
		return errors.ValidationError(field, fmt.Sprintf("must be positive, got %d", v))
	}
	return nil
}
