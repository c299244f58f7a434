// Package service implements the reference server's board operations on
// top of a repository.
package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/events/bus"
	"github.com/lizmareco/tablero/internal/server/repository"
)

// Notifier is told when a board changed. The live hub implements it.
type Notifier interface {
	Notify(boardID int64, reason string)
}

// dashboardPalette colors dashboard entries in list order.
var dashboardPalette = []string{"#0088FE", "#00C49F", "#FFBB28", "#FF8042", "#8884D8", "#82CA9D"}

// Service provides board operations.
type Service struct {
	repo     repository.Repository
	eventBus bus.EventBus
	notifier Notifier
	logger   *logger.Logger
	hashCost int

	// structure serializes changes that rewrite positions.
	structure sync.Mutex
}

// NewService creates a new board service. eventBus and notifier may be nil.
func NewService(repo repository.Repository, eventBus bus.EventBus, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		notifier: notifier,
		logger:   log.WithComponent("board-service"),
		hashCost: defaultHashCost,
	}
}

// SetNotifier replaces the board change notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Workspace operations

// Workspaces returns the active workspaces userID belongs to.
func (s *Service) Workspaces(ctx context.Context, userID int64) ([]*models.Workspace, error) {
	ws, err := s.repo.ListWorkspaces(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		ws = []*models.Workspace{}
	}
	return ws, nil
}

// CreateWorkspace creates a workspace owned by ownerID.
func (s *Service) CreateWorkspace(ctx context.Context, ownerID int64, name, description string, userIDs []int64) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("nombre", "is required")
	}
	ws := &models.Workspace{Name: name, Description: description, UserIDs: userIDs}
	if err := s.repo.CreateWorkspace(ctx, ws, ownerID); err != nil {
		return nil, err
	}
	s.logger.Info("workspace created", zap.Int64("workspace_id", ws.ID), zap.Int64("owner_id", ownerID))
	return ws, nil
}

// WorkspaceUsers returns the members of a workspace.
func (s *Service) WorkspaceUsers(ctx context.Context, workspaceID int64) ([]*models.User, error) {
	users, err := s.repo.ListWorkspaceUsers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return publicUsers(users), nil
}

// DeactivateWorkspace hides a workspace.
func (s *Service) DeactivateWorkspace(ctx context.Context, workspaceID int64) error {
	if err := s.repo.DeactivateWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	s.logger.Info("workspace deactivated", zap.Int64("workspace_id", workspaceID))
	return nil
}

// Board operations

// Boards returns the boards of a workspace.
func (s *Service) Boards(ctx context.Context, workspaceID int64) ([]*models.Board, error) {
	if _, err := s.repo.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return s.repo.ListBoards(ctx, workspaceID)
}

// CreateBoard creates an empty board.
func (s *Service) CreateBoard(ctx context.Context, workspaceID int64, name, description string) (*models.Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("nombre", "is required")
	}
	if _, err := s.repo.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	board := &models.Board{WorkspaceID: workspaceID, Name: name, Description: description}
	if err := s.repo.CreateBoard(ctx, board); err != nil {
		return nil, err
	}
	return board, nil
}

// BoardLists returns a board's lists with their cards, both in position order.
func (s *Service) BoardLists(ctx context.Context, boardID int64) ([]*models.List, error) {
	if _, err := s.repo.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	lists, err := s.repo.ListLists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for _, l := range lists {
		cards, err := s.repo.ListCards(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		l.Cards = cards
		l.Renumber()
	}
	return lists, nil
}

// Dashboard counts the cards of every list.
func (s *Service) Dashboard(ctx context.Context, boardID int64) ([]*models.StatEntry, error) {
	lists, err := s.BoardLists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.StatEntry, 0, len(lists))
	for i, l := range lists {
		out = append(out, &models.StatEntry{
			Name:  l.Name,
			Value: len(l.Cards),
			Color: dashboardPalette[i%len(dashboardPalette)],
		})
	}
	return out, nil
}

// Users returns every registered user.
func (s *Service) Users(ctx context.Context) ([]*models.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return publicUsers(users), nil
}

func publicUsers(users []*repository.User) []*models.User {
	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Model())
	}
	return out
}
