package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/server/service"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// AccountHandlers serves authentication, users and workspaces.
type AccountHandlers struct {
	service *service.Service
	logger  *logger.Logger
}

func NewAccountHandlers(svc *service.Service, log *logger.Logger) *AccountHandlers {
	return &AccountHandlers{
		service: svc,
		logger:  log.WithFields(zap.String("component", "account-handlers")),
	}
}

func (h *AccountHandlers) registerPublic(router gin.IRouter) {
	auth := router.Group("/auth")
	auth.POST("/login", h.httpLogin)
	auth.POST("/register", h.httpRegister)
}

func (h *AccountHandlers) registerHTTP(api gin.IRouter) {
	api.GET("/users", h.httpListUsers)
	api.GET("/workspaces", h.httpListWorkspaces)
	api.POST("/workspaces", h.httpCreateWorkspace)
	api.GET("/workspaces/:id/users", h.httpListWorkspaceUsers)
	api.PUT("/workspaces/:id/deactivate", h.httpDeactivateWorkspace)
}

func (h *AccountHandlers) httpLogin(c *gin.Context) {
	var body v1.LoginRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	token, user, err := h.service.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v1.LoginResponse{Token: token, User: user.ToAPI()})
}

func (h *AccountHandlers) httpRegister(c *gin.Context) {
	var body v1.RegisterRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	user, err := h.service.Register(c.Request.Context(), body.Nombre, body.Email, body.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user.ToAPI())
}

func (h *AccountHandlers) httpListUsers(c *gin.Context) {
	users, err := h.service.Users(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usersToAPI(users))
}

func (h *AccountHandlers) httpListWorkspaces(c *gin.Context) {
	workspaces, err := h.service.Workspaces(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]*v1.Workspace, 0, len(workspaces))
	for _, ws := range workspaces {
		out = append(out, ws.ToAPI())
	}
	c.JSON(http.StatusOK, out)
}

func (h *AccountHandlers) httpCreateWorkspace(c *gin.Context) {
	var body v1.CreateWorkspaceRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	ws, err := h.service.CreateWorkspace(c.Request.Context(), currentUser(c).ID,
		body.Nombre, body.Descripcion, body.UsuariosAsignados)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ws.ToAPI())
}

func (h *AccountHandlers) httpListWorkspaceUsers(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	users, err := h.service.WorkspaceUsers(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usersToAPI(users))
}

func (h *AccountHandlers) httpDeactivateWorkspace(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	if err := h.service.DeactivateWorkspace(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func usersToAPI(users []*models.User) []*v1.User {
	out := make([]*v1.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToAPI())
	}
	return out
}
