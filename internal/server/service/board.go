package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/constants"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/events"
	"github.com/lizmareco/tablero/internal/server/repository"
)

// CardInput holds the attributes of a new card.
type CardInput struct {
	ListID         int64
	Title          string
	Description    string
	DueDate        *time.Time
	Label          string
	AssignedUserID *int64
}

// CardPatch holds the attributes an update changes. Nil fields are kept.
type CardPatch struct {
	Title          *string
	Description    *string
	DueDate        *time.Time
	Label          *string
	AssignedUserID *int64
	Status         *string
}

// TaskInput holds the attributes of a new task.
type TaskInput struct {
	Name        string
	Description string
	Status      string
	DueDate     *time.Time
}

// List operations

// CreateList appends a list to a board.
func (s *Service) CreateList(ctx context.Context, boardID int64, name string, maxWIP int) (*models.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("nombre", "is required")
	}
	if maxWIP <= 0 {
		return nil, errors.ValidationError("maxWIP", "must be positive")
	}
	s.structure.Lock()
	defer s.structure.Unlock()

	list := &models.List{BoardID: boardID, Name: name, MaxWIP: maxWIP}
	if err := s.repo.CreateList(ctx, list); err != nil {
		return nil, err
	}
	list.Cards = []*models.Card{}
	s.changed(ctx, boardID, events.ListCreated, map[string]interface{}{"list_id": list.ID})
	return list, nil
}

// RenameList changes a list's name.
func (s *Service) RenameList(ctx context.Context, listID int64, name string) (*models.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("nombre", "is required")
	}
	list, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	list.Name = name
	if err := s.repo.UpdateList(ctx, list); err != nil {
		return nil, err
	}
	s.changed(ctx, list.BoardID, events.ListUpdated, map[string]interface{}{"list_id": listID})
	return list, nil
}

// DeleteList removes a list with its cards and closes the gap it leaves.
func (s *Service) DeleteList(ctx context.Context, listID int64) error {
	s.structure.Lock()
	defer s.structure.Unlock()

	list, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteList(ctx, listID); err != nil {
		return err
	}
	if err := s.renumberLists(ctx, list.BoardID); err != nil {
		return err
	}
	s.changed(ctx, list.BoardID, events.ListDeleted, map[string]interface{}{"list_id": listID})
	return nil
}

// MoveList places a list at position within its board. Positions past the
// end are clamped.
func (s *Service) MoveList(ctx context.Context, listID int64, position int) error {
	if position < 0 {
		return errors.ValidationError("position", "must not be negative")
	}
	s.structure.Lock()
	defer s.structure.Unlock()

	list, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return err
	}
	lists, err := s.repo.ListLists(ctx, list.BoardID)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(lists))
	for _, l := range lists {
		if l.ID != listID {
			ids = append(ids, l.ID)
		}
	}
	position = min(position, len(ids))
	ids = slices.Insert(ids, position, listID)
	if err := s.repo.SetListOrder(ctx, list.BoardID, ids); err != nil {
		return err
	}
	s.logger.Debug("list moved", zap.Int64("list_id", listID), zap.Int("position", position))
	s.changed(ctx, list.BoardID, events.ListMoved, map[string]interface{}{"list_id": listID, "position": position})
	return nil
}

func (s *Service) renumberLists(ctx context.Context, boardID int64) error {
	lists, err := s.repo.ListLists(ctx, boardID)
	if err != nil {
		return err
	}
	ids := make([]int64, len(lists))
	for i, l := range lists {
		ids[i] = l.ID
	}
	return s.repo.SetListOrder(ctx, boardID, ids)
}

// Card operations

// CreateCard appends a card to its list.
func (s *Service) CreateCard(ctx context.Context, in CardInput) (*models.Card, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.ValidationError("nombre", "is required")
	}
	s.structure.Lock()
	defer s.structure.Unlock()

	list, err := s.repo.GetList(ctx, in.ListID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListCards(ctx, in.ListID)
	if err != nil {
		return nil, err
	}
	card := &models.Card{
		ListID:         in.ListID,
		Title:          title,
		Description:    in.Description,
		DueDate:        in.DueDate,
		Label:          in.Label,
		AssignedUserID: in.AssignedUserID,
		Status:         constants.StatusOpen,
		Position:       len(existing),
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	created, err := s.repo.GetCard(ctx, card.ID)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, list.BoardID, events.CardCreated, map[string]interface{}{"card_id": card.ID, "list_id": in.ListID})
	return created, nil
}

// UpdateCard applies a patch. List and position are never changed here.
func (s *Service) UpdateCard(ctx context.Context, cardID int64, patch CardPatch) (*models.Card, error) {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, errors.ValidationError("nombre", "must not be empty")
		}
		card.Title = title
	}
	if patch.Description != nil {
		card.Description = *patch.Description
	}
	if patch.DueDate != nil {
		card.DueDate = patch.DueDate
	}
	if patch.Label != nil {
		card.Label = *patch.Label
	}
	if patch.AssignedUserID != nil {
		card.AssignedUserID = patch.AssignedUserID
	}
	if patch.Status != nil {
		if err := checkStatus(*patch.Status); err != nil {
			return nil, err
		}
		card.Status = *patch.Status
	}
	if err := s.repo.UpdateCard(ctx, card); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if boardID, err := s.boardOfList(ctx, card.ListID); err == nil {
		s.changed(ctx, boardID, events.CardUpdated, map[string]interface{}{"card_id": cardID})
	}
	return updated, nil
}

// DeleteCard removes a card and closes the gap in its list.
func (s *Service) DeleteCard(ctx context.Context, cardID int64) error {
	s.structure.Lock()
	defer s.structure.Unlock()

	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	remaining, err := s.repo.ListCards(ctx, card.ListID)
	if err != nil {
		return err
	}
	if err := s.repo.PlaceCards(ctx, placements(card.ListID, remaining)); err != nil {
		return err
	}
	if boardID, err := s.boardOfList(ctx, card.ListID); err == nil {
		s.changed(ctx, boardID, events.CardDeleted, map[string]interface{}{"card_id": cardID})
	}
	return nil
}

// MoveCard places a card at position in listID, which must belong to the
// same board. Both affected lists end up densely numbered; positions past
// the end are clamped.
func (s *Service) MoveCard(ctx context.Context, cardID, listID int64, position int) error {
	if position < 0 {
		return errors.ValidationError("position", "must not be negative")
	}
	s.structure.Lock()
	defer s.structure.Unlock()

	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	source, err := s.repo.GetList(ctx, card.ListID)
	if err != nil {
		return err
	}
	target, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if source.BoardID != target.BoardID {
		return errors.BadRequest("cards can only move between lists of the same board")
	}

	sourceCards, err := s.repo.ListCards(ctx, source.ID)
	if err != nil {
		return err
	}
	sourceCards = slices.DeleteFunc(sourceCards, func(c *models.Card) bool { return c.ID == cardID })

	var moves []repository.CardPlacement
	if source.ID == target.ID {
		position = min(position, len(sourceCards))
		sourceCards = slices.Insert(sourceCards, position, card)
		moves = placements(source.ID, sourceCards)
	} else {
		targetCards, err := s.repo.ListCards(ctx, target.ID)
		if err != nil {
			return err
		}
		position = min(position, len(targetCards))
		targetCards = slices.Insert(targetCards, position, card)
		moves = append(placements(source.ID, sourceCards), placements(target.ID, targetCards)...)
	}
	if err := s.repo.PlaceCards(ctx, moves); err != nil {
		return err
	}
	s.logger.Debug("card moved",
		zap.Int64("card_id", cardID),
		zap.Int64("list_id", listID),
		zap.Int("position", position))
	s.changed(ctx, target.BoardID, events.CardMoved, map[string]interface{}{
		"card_id":  cardID,
		"list_id":  listID,
		"position": position,
	})
	return nil
}

func placements(listID int64, cards []*models.Card) []repository.CardPlacement {
	out := make([]repository.CardPlacement, len(cards))
	for i, c := range cards {
		out[i] = repository.CardPlacement{CardID: c.ID, ListID: listID, Position: i}
	}
	return out
}

func (s *Service) boardOfList(ctx context.Context, listID int64) (int64, error) {
	list, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return 0, err
	}
	return list.BoardID, nil
}

func (s *Service) boardOfCard(ctx context.Context, cardID int64) (int64, error) {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return 0, err
	}
	return s.boardOfList(ctx, card.ListID)
}

// Task operations

// Tasks returns a card's tasks.
func (s *Service) Tasks(ctx context.Context, cardID int64) ([]*models.Task, error) {
	if _, err := s.repo.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, cardID)
}

// CreateTask adds a task to a card.
func (s *Service) CreateTask(ctx context.Context, cardID int64, in TaskInput) (*models.Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.ValidationError("nombre", "is required")
	}
	status := in.Status
	if status == "" {
		status = constants.StatusOpen
	}
	if err := checkStatus(status); err != nil {
		return nil, err
	}
	task := &models.Task{CardID: cardID, Name: name, Description: in.Description, Status: status, DueDate: in.DueDate}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	if boardID, err := s.boardOfCard(ctx, cardID); err == nil {
		s.changed(ctx, boardID, events.TaskCreated, map[string]interface{}{"card_id": cardID, "task_id": task.ID})
	}
	return task, nil
}

// SetTaskStatus opens or closes a task.
func (s *Service) SetTaskStatus(ctx context.Context, taskID int64, status string) (*models.Task, error) {
	if err := checkStatus(status); err != nil {
		return nil, err
	}
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.Status = status
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	if boardID, err := s.boardOfCard(ctx, task.CardID); err == nil {
		s.changed(ctx, boardID, events.TaskUpdated, map[string]interface{}{"card_id": task.CardID, "task_id": taskID})
	}
	return task, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, taskID int64) error {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	if boardID, err := s.boardOfCard(ctx, task.CardID); err == nil {
		s.changed(ctx, boardID, events.TaskDeleted, map[string]interface{}{"card_id": task.CardID, "task_id": taskID})
	}
	return nil
}

func checkStatus(status string) error {
	if status != constants.StatusOpen && status != constants.StatusClosed {
		return errors.ValidationError("estado", "must be open or closed")
	}
	return nil
}
