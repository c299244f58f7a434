// Package repository stores the reference server's data.
package repository

import (
	"context"

	"github.com/lizmareco/tablero/internal/board/models"
)

// User is an account with its password hash.
type User struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
}

// Model returns the public view of the user.
func (u *User) Model() *models.User {
	return &models.User{ID: u.ID, Name: u.Name, Email: u.Email}
}

// CardPlacement puts a card at a position of a list.
type CardPlacement struct {
	CardID   int64
	ListID   int64
	Position int
}

// Repository defines the storage operations of the reference server.
// Lists and cards come back ordered by position.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// Token operations
	CreateToken(ctx context.Context, token string, userID int64) error
	GetUserByToken(ctx context.Context, token string) (*User, error)

	// Workspace operations
	CreateWorkspace(ctx context.Context, ws *models.Workspace, ownerID int64) error
	GetWorkspace(ctx context.Context, id int64) (*models.Workspace, error)
	ListWorkspaces(ctx context.Context, userID int64) ([]*models.Workspace, error)
	ListWorkspaceUsers(ctx context.Context, id int64) ([]*User, error)
	DeactivateWorkspace(ctx context.Context, id int64) error

	// Board operations
	CreateBoard(ctx context.Context, board *models.Board) error
	GetBoard(ctx context.Context, id int64) (*models.Board, error)
	ListBoards(ctx context.Context, workspaceID int64) ([]*models.Board, error)

	// List operations. CreateList appends; SetListOrder rewrites positions
	// to match ids.
	CreateList(ctx context.Context, list *models.List) error
	GetList(ctx context.Context, id int64) (*models.List, error)
	UpdateList(ctx context.Context, list *models.List) error
	DeleteList(ctx context.Context, id int64) error
	ListLists(ctx context.Context, boardID int64) ([]*models.List, error)
	SetListOrder(ctx context.Context, boardID int64, ids []int64) error

	// Card operations. CreateCard stores card.Position as given.
	CreateCard(ctx context.Context, card *models.Card) error
	GetCard(ctx context.Context, id int64) (*models.Card, error)
	UpdateCard(ctx context.Context, card *models.Card) error
	DeleteCard(ctx context.Context, id int64) error
	ListCards(ctx context.Context, listID int64) ([]*models.Card, error)
	PlaceCards(ctx context.Context, placements []CardPlacement) error

	// Task operations
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id int64) error
	ListTasks(ctx context.Context, cardID int64) ([]*models.Task, error)

	Close() error
}
