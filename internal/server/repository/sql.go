package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/server/db"
)

// SQLRepository stores boards in SQLite or PostgreSQL. Both share one
// query path; placeholders go through Rebind.
type SQLRepository struct {
	db     *sqlx.DB
	ownsDB bool
}

// Ensure SQLRepository implements Repository interface
var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository wraps an open database and creates the schema. The
// caller keeps ownership of the connection.
func NewSQLRepository(dbConn *sqlx.DB) (*SQLRepository, error) {
	return newSQLRepository(dbConn, false)
}

// NewSQLRepositoryWithDB is like NewSQLRepository but Close also closes
// the connection.
func NewSQLRepositoryWithDB(dbConn *sqlx.DB) (*SQLRepository, error) {
	return newSQLRepository(dbConn, true)
}

func newSQLRepository(dbConn *sqlx.DB, ownsDB bool) (*SQLRepository, error) {
	repo := &SQLRepository{db: dbConn, ownsDB: ownsDB}
	if err := repo.initSchema(); err != nil {
		if ownsDB {
			_ = dbConn.Close()
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Close closes the database connection when the repository owns it.
func (r *SQLRepository) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}

func (r *SQLRepository) initSchema() error {
	driver := r.db.DriverName()
	id, ts := db.AutoIncrementID(driver), db.Timestamp(driver)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			` + id + `,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			token TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			` + id + `,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id BIGINT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS workspace_users (
			workspace_id BIGINT NOT NULL REFERENCES workspaces(id),
			user_id BIGINT NOT NULL REFERENCES users(id),
			PRIMARY KEY (workspace_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS boards (
			` + id + `,
			workspace_id BIGINT NOT NULL REFERENCES workspaces(id),
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS lists (
			` + id + `,
			board_id BIGINT NOT NULL REFERENCES boards(id),
			name TEXT NOT NULL,
			max_wip INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS cards (
			` + id + `,
			list_id BIGINT NOT NULL REFERENCES lists(id),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			due_date ` + ts + `,
			label TEXT NOT NULL DEFAULT '',
			assigned_user_id BIGINT REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'open',
			position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			` + id + `,
			card_id BIGINT NOT NULL REFERENCES cards(id),
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'open',
			due_date ` + ts + `
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lists_board ON lists(board_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_list ON cards(list_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_card ON tasks(card_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn in a transaction, rolling back when it fails.
func (r *SQLRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// requireAffected turns a zero-row update or delete into a not found error.
func requireAffected(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound(resource, id)
	}
	return nil
}

func notFoundOr(err error, resource string, id int64) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource, id)
	}
	return err
}

// User operations

func (r *SQLRepository) CreateUser(ctx context.Context, user *User) error {
	if _, err := r.GetUserByEmail(ctx, user.Email); err == nil {
		return errors.Conflict("email already registered")
	} else if !errors.IsNotFound(err) {
		return err
	}
	id, err := db.InsertReturningID(ctx, r.db,
		`INSERT INTO users (name, email, password_hash) VALUES (?, ?, ?)`,
		user.Name, user.Email, user.PasswordHash)
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (r *SQLRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(
		`SELECT id, name, email, password_hash FROM users WHERE LOWER(email) = LOWER(?)`), email)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundf("user with email '%s' not found", email)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *SQLRepository) ListUsers(ctx context.Context) ([]*User, error) {
	var out []*User
	err := r.db.SelectContext(ctx, &out, `SELECT id, name, email, password_hash FROM users ORDER BY id`)
	return out, err
}

// Token operations

func (r *SQLRepository) CreateToken(ctx context.Context, token string, userID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO tokens (token, user_id) VALUES (?, ?)`), token, userID)
	return err
}

func (r *SQLRepository) GetUserByToken(ctx context.Context, token string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(`
		SELECT u.id, u.name, u.email, u.password_hash
		FROM tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token = ?`), token)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Unauthorized("unknown token")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Workspace operations

type workspaceRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

func (r *SQLRepository) CreateWorkspace(ctx context.Context, ws *models.Workspace, ownerID int64) error {
	members := []int64{ownerID}
	for _, id := range ws.UserIDs {
		if id != ownerID && !containsID(members, id) {
			members = append(members, id)
		}
	}
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := db.InsertReturningID(ctx, tx,
			`INSERT INTO workspaces (name, description, owner_id, active) VALUES (?, ?, ?, ?)`,
			ws.Name, ws.Description, ownerID, db.BoolToInt(true))
		if err != nil {
			return err
		}
		for _, uid := range members {
			if _, err := tx.ExecContext(ctx, tx.Rebind(
				`INSERT INTO workspace_users (workspace_id, user_id) VALUES (?, ?)`), id, uid); err != nil {
				return err
			}
		}
		ws.ID = id
		ws.UserIDs = members
		return nil
	})
}

func (r *SQLRepository) GetWorkspace(ctx context.Context, id int64) (*models.Workspace, error) {
	var row workspaceRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT id, name, description FROM workspaces WHERE id = ? AND active = 1`), id)
	if err != nil {
		return nil, notFoundOr(err, "workspace", id)
	}
	ws := &models.Workspace{ID: row.ID, Name: row.Name, Description: row.Description}
	if err := r.db.SelectContext(ctx, &ws.UserIDs, r.db.Rebind(
		`SELECT user_id FROM workspace_users WHERE workspace_id = ? ORDER BY user_id`), id); err != nil {
		return nil, err
	}
	return ws, nil
}

func (r *SQLRepository) ListWorkspaces(ctx context.Context, userID int64) ([]*models.Workspace, error) {
	var rows []workspaceRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT w.id, w.name, w.description
		FROM workspaces w JOIN workspace_users wu ON wu.workspace_id = w.id
		WHERE wu.user_id = ? AND w.active = 1
		ORDER BY w.id`), userID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Workspace, 0, len(rows))
	for _, row := range rows {
		ws := &models.Workspace{ID: row.ID, Name: row.Name, Description: row.Description}
		if err := r.db.SelectContext(ctx, &ws.UserIDs, r.db.Rebind(
			`SELECT user_id FROM workspace_users WHERE workspace_id = ? ORDER BY user_id`), row.ID); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, nil
}

func (r *SQLRepository) ListWorkspaceUsers(ctx context.Context, id int64) ([]*User, error) {
	if _, err := r.GetWorkspace(ctx, id); err != nil {
		return nil, err
	}
	var out []*User
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT u.id, u.name, u.email, u.password_hash
		FROM users u JOIN workspace_users wu ON wu.user_id = u.id
		WHERE wu.workspace_id = ?
		ORDER BY u.id`), id)
	return out, err
}

func (r *SQLRepository) DeactivateWorkspace(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE workspaces SET active = ? WHERE id = ?`),
		db.BoolToInt(false), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "workspace", id)
}

// Board operations

type boardRow struct {
	ID          int64  `db:"id"`
	WorkspaceID int64  `db:"workspace_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

func (row boardRow) model() *models.Board {
	return &models.Board{ID: row.ID, WorkspaceID: row.WorkspaceID, Name: row.Name, Description: row.Description}
}

func (r *SQLRepository) CreateBoard(ctx context.Context, board *models.Board) error {
	var exists int
	if err := r.db.GetContext(ctx, &exists, r.db.Rebind(
		`SELECT COUNT(*) FROM workspaces WHERE id = ?`), board.WorkspaceID); err != nil {
		return err
	}
	if exists == 0 {
		return errors.NotFound("workspace", board.WorkspaceID)
	}
	id, err := db.InsertReturningID(ctx, r.db,
		`INSERT INTO boards (workspace_id, name, description) VALUES (?, ?, ?)`,
		board.WorkspaceID, board.Name, board.Description)
	if err != nil {
		return err
	}
	board.ID = id
	return nil
}

func (r *SQLRepository) GetBoard(ctx context.Context, id int64) (*models.Board, error) {
	var row boardRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT id, workspace_id, name, description FROM boards WHERE id = ?`), id)
	if err != nil {
		return nil, notFoundOr(err, "board", id)
	}
	return row.model(), nil
}

func (r *SQLRepository) ListBoards(ctx context.Context, workspaceID int64) ([]*models.Board, error) {
	var rows []boardRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		`SELECT id, workspace_id, name, description FROM boards WHERE workspace_id = ? ORDER BY id`),
		workspaceID); err != nil {
		return nil, err
	}
	out := make([]*models.Board, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// List operations

type listRow struct {
	ID      int64  `db:"id"`
	BoardID int64  `db:"board_id"`
	Name    string `db:"name"`
	MaxWIP  int    `db:"max_wip"`
}

func (row listRow) model() *models.List {
	return &models.List{ID: row.ID, BoardID: row.BoardID, Name: row.Name, MaxWIP: row.MaxWIP, Cards: []*models.Card{}}
}

func (r *SQLRepository) CreateList(ctx context.Context, list *models.List) error {
	if _, err := r.GetBoard(ctx, list.BoardID); err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var count int
		if err := tx.GetContext(ctx, &count, tx.Rebind(
			`SELECT COUNT(*) FROM lists WHERE board_id = ?`), list.BoardID); err != nil {
			return err
		}
		id, err := db.InsertReturningID(ctx, tx,
			`INSERT INTO lists (board_id, name, max_wip, position) VALUES (?, ?, ?, ?)`,
			list.BoardID, list.Name, list.MaxWIP, count)
		if err != nil {
			return err
		}
		list.ID = id
		return nil
	})
}

func (r *SQLRepository) GetList(ctx context.Context, id int64) (*models.List, error) {
	var row listRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT id, board_id, name, max_wip FROM lists WHERE id = ?`), id)
	if err != nil {
		return nil, notFoundOr(err, "list", id)
	}
	return row.model(), nil
}

func (r *SQLRepository) UpdateList(ctx context.Context, list *models.List) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE lists SET name = ?, max_wip = ? WHERE id = ?`),
		list.Name, list.MaxWIP, list.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "list", list.ID)
}

func (r *SQLRepository) DeleteList(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`DELETE FROM tasks WHERE card_id IN (SELECT id FROM cards WHERE list_id = ?)`), id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cards WHERE list_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM lists WHERE id = ?`), id)
		if err != nil {
			return err
		}
		return requireAffected(res, "list", id)
	})
}

func (r *SQLRepository) ListLists(ctx context.Context, boardID int64) ([]*models.List, error) {
	var rows []listRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		`SELECT id, board_id, name, max_wip FROM lists WHERE board_id = ? ORDER BY position, id`),
		boardID); err != nil {
		return nil, err
	}
	out := make([]*models.List, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (r *SQLRepository) SetListOrder(ctx context.Context, boardID int64, ids []int64) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for i, id := range ids {
			res, err := tx.ExecContext(ctx, tx.Rebind(
				`UPDATE lists SET position = ? WHERE id = ? AND board_id = ?`), i, id, boardID)
			if err != nil {
				return err
			}
			if err := requireAffected(res, "list", id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Card operations

type cardRow struct {
	ID               int64      `db:"id"`
	ListID           int64      `db:"list_id"`
	Title            string     `db:"title"`
	Description      string     `db:"description"`
	DueDate          *time.Time `db:"due_date"`
	Label            string     `db:"label"`
	AssignedUserID   *int64     `db:"assigned_user_id"`
	AssignedUserName string     `db:"assigned_user_name"`
	Status           string     `db:"status"`
	Position         int        `db:"position"`
}

func (row cardRow) model() *models.Card {
	return &models.Card{
		ID:               row.ID,
		ListID:           row.ListID,
		Title:            row.Title,
		Description:      row.Description,
		DueDate:          row.DueDate,
		Label:            row.Label,
		AssignedUserID:   row.AssignedUserID,
		AssignedUserName: row.AssignedUserName,
		Status:           row.Status,
		Position:         row.Position,
	}
}

const selectCards = `
	SELECT c.id, c.list_id, c.title, c.description, c.due_date, c.label,
		c.assigned_user_id, COALESCE(u.name, '') AS assigned_user_name, c.status, c.position
	FROM cards c LEFT JOIN users u ON u.id = c.assigned_user_id`

func (r *SQLRepository) CreateCard(ctx context.Context, card *models.Card) error {
	if _, err := r.GetList(ctx, card.ListID); err != nil {
		return err
	}
	id, err := db.InsertReturningID(ctx, r.db, `
		INSERT INTO cards (list_id, title, description, due_date, label, assigned_user_id, status, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ListID, card.Title, card.Description, utcPtr(card.DueDate), card.Label,
		card.AssignedUserID, card.Status, card.Position)
	if err != nil {
		return err
	}
	card.ID = id
	return nil
}

func (r *SQLRepository) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	var row cardRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(selectCards+` WHERE c.id = ?`), id); err != nil {
		return nil, notFoundOr(err, "card", id)
	}
	return row.model(), nil
}

func (r *SQLRepository) UpdateCard(ctx context.Context, card *models.Card) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE cards SET title = ?, description = ?, due_date = ?, label = ?, assigned_user_id = ?, status = ?
		WHERE id = ?`),
		card.Title, card.Description, utcPtr(card.DueDate), card.Label, card.AssignedUserID, card.Status, card.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "card", card.ID)
}

func (r *SQLRepository) DeleteCard(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tasks WHERE card_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cards WHERE id = ?`), id)
		if err != nil {
			return err
		}
		return requireAffected(res, "card", id)
	})
}

func (r *SQLRepository) ListCards(ctx context.Context, listID int64) ([]*models.Card, error) {
	var rows []cardRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		selectCards+` WHERE c.list_id = ? ORDER BY c.position, c.id`), listID); err != nil {
		return nil, err
	}
	out := make([]*models.Card, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (r *SQLRepository) PlaceCards(ctx context.Context, placements []CardPlacement) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, p := range placements {
			res, err := tx.ExecContext(ctx, tx.Rebind(
				`UPDATE cards SET list_id = ?, position = ? WHERE id = ?`), p.ListID, p.Position, p.CardID)
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "foreign key") {
					return errors.NotFound("list", p.ListID)
				}
				return err
			}
			if err := requireAffected(res, "card", p.CardID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Task operations

type taskRow struct {
	ID          int64      `db:"id"`
	CardID      int64      `db:"card_id"`
	Name        string     `db:"name"`
	Description string     `db:"description"`
	Status      string     `db:"status"`
	DueDate     *time.Time `db:"due_date"`
}

func (row taskRow) model() *models.Task {
	return &models.Task{
		ID:          row.ID,
		CardID:      row.CardID,
		Name:        row.Name,
		Description: row.Description,
		Status:      row.Status,
		DueDate:     row.DueDate,
	}
}

func (r *SQLRepository) CreateTask(ctx context.Context, task *models.Task) error {
	if _, err := r.GetCard(ctx, task.CardID); err != nil {
		return err
	}
	id, err := db.InsertReturningID(ctx, r.db,
		`INSERT INTO tasks (card_id, name, description, status, due_date) VALUES (?, ?, ?, ?, ?)`,
		task.CardID, task.Name, task.Description, task.Status, utcPtr(task.DueDate))
	if err != nil {
		return err
	}
	task.ID = id
	return nil
}

func (r *SQLRepository) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var row taskRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT id, card_id, name, description, status, due_date FROM tasks WHERE id = ?`), id); err != nil {
		return nil, notFoundOr(err, "task", id)
	}
	return row.model(), nil
}

func (r *SQLRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE tasks SET name = ?, description = ?, status = ?, due_date = ? WHERE id = ?`),
		task.Name, task.Description, task.Status, utcPtr(task.DueDate), task.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "task", task.ID)
}

func (r *SQLRepository) DeleteTask(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "task", id)
}

func (r *SQLRepository) ListTasks(ctx context.Context, cardID int64) ([]*models.Task, error) {
	var rows []taskRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		`SELECT id, card_id, name, description, status, due_date FROM tasks WHERE card_id = ? ORDER BY id`),
		cardID); err != nil {
		return nil, err
	}
	out := make([]*models.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
