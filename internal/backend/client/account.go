package client

import (
	"context"
	"time"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/session"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// Login exchanges credentials for a session and starts using it.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Session, error) {
	req := &v1.LoginRequest{Email: email, Password: password}
	if err := v1.Validate(req); err != nil {
		return nil, invalid(err)
	}
	var resp v1.LoginResponse
	if err := c.do(ctx, "POST", "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if err := v1.Validate(&resp); err != nil {
		return nil, invalid(err)
	}
	sess := &session.Session{
		Token:   resp.Token,
		User:    models.UserFromAPI(resp.User),
		SavedAt: time.Now().UTC(),
	}
	c.SetSession(sess)
	return sess, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req *v1.RegisterRequest) error {
	if err := v1.Validate(req); err != nil {
		return invalid(err)
	}
	return c.do(ctx, "POST", "/auth/register", req, nil)
}

// Users returns every registered user.
func (c *Client) Users(ctx context.Context) ([]*models.User, error) {
	return c.users(ctx, "/users")
}

// WorkspaceUsers returns the users assigned to a workspace.
func (c *Client) WorkspaceUsers(ctx context.Context, workspaceID int64) ([]*models.User, error) {
	if err := requireID("workspaceId", workspaceID); err != nil {
		return nil, err
	}
	return c.users(ctx, "/workspaces/"+id(workspaceID)+"/users")
}

func (c *Client) users(ctx context.Context, path string) ([]*models.User, error) {
	var payload []*v1.User
	if err := c.do(ctx, "GET", path, nil, &payload); err != nil {
		return nil, err
	}
	if err := v1.ValidateEach(payload); err != nil {
		return nil, invalid(err)
	}
	out := make([]*models.User, 0, len(payload))
	for _, u := range payload {
		out = append(out, models.UserFromAPI(u))
	}
	return out, nil
}

// Workspaces returns the workspaces visible to the session's user.
func (c *Client) Workspaces(ctx context.Context) ([]*models.Workspace, error) {
	var payload []*v1.Workspace
	if err := c.do(ctx, "GET", "/workspaces", nil, &payload); err != nil {
		return nil, err
	}
	if err := v1.ValidateEach(payload); err != nil {
		return nil, invalid(err)
	}
	out := make([]*models.Workspace, 0, len(payload))
	for _, w := range payload {
		out = append(out, models.WorkspaceFromAPI(w))
	}
	return out, nil
}

// CreateWorkspace creates a workspace.
func (c *Client) CreateWorkspace(ctx context.Context, req *v1.CreateWorkspaceRequest) (*models.Workspace, error) {
	if err := v1.Validate(req); err != nil {
		return nil, invalid(err)
	}
	var created v1.Workspace
	if err := c.do(ctx, "POST", "/workspaces", req, &created); err != nil {
		return nil, err
	}
	if err := v1.Validate(&created); err != nil {
		return nil, invalid(err)
	}
	return models.WorkspaceFromAPI(&created), nil
}

// DeactivateWorkspace hides a workspace from its users.
func (c *Client) DeactivateWorkspace(ctx context.Context, workspaceID int64) error {
	if err := requireID("workspaceId", workspaceID); err != nil {
		return err
	}
	return c.do(ctx, "PUT", "/workspaces/"+id(workspaceID)+"/deactivate", nil, nil)
}
