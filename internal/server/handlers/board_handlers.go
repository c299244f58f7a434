package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/server/service"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// BoardHandlers serves boards, lists, cards, tasks and the dashboard.
type BoardHandlers struct {
	service *service.Service
	logger  *logger.Logger
}

func NewBoardHandlers(svc *service.Service, log *logger.Logger) *BoardHandlers {
	return &BoardHandlers{
		service: svc,
		logger:  log.WithFields(zap.String("component", "board-handlers")),
	}
}

func (h *BoardHandlers) registerHTTP(api gin.IRouter) {
	api.GET("/boards", h.httpListBoards)
	api.POST("/boards", h.httpCreateBoard)
	api.GET("/dashboard/:boardId", h.httpDashboard)

	api.GET("/lists/board/:boardId", h.httpBoardLists)
	api.POST("/lists", h.httpCreateList)
	api.PUT("/lists/:id", h.httpRenameList)
	api.DELETE("/lists/:id", h.httpDeleteList)
	api.PUT("/lists/:id/move", h.httpMoveList)

	api.POST("/cards", h.httpCreateCard)
	api.PUT("/cards/:id", h.httpUpdateCard)
	api.DELETE("/cards/:id", h.httpDeleteCard)
	api.PUT("/cards/:id/move", h.httpMoveCard)
	api.GET("/cards/:id/tasks", h.httpListTasks)
	api.POST("/cards/:id/tasks", h.httpCreateTask)
	api.PUT("/cards/tasks/:id", h.httpUpdateTask)
	api.DELETE("/cards/tasks/:id", h.httpDeleteTask)
}

// Boards

func (h *BoardHandlers) httpListBoards(c *gin.Context) {
	workspaceID, err := strconv.ParseInt(c.Query("workspaceId"), 10, 64)
	if err != nil || workspaceID <= 0 {
		respondError(c, h.logger, errors.BadRequest("workspaceId query parameter is required"))
		return
	}
	boards, err := h.service.Boards(c.Request.Context(), workspaceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]*v1.Board, 0, len(boards))
	for _, b := range boards {
		out = append(out, b.ToAPI())
	}
	c.JSON(http.StatusOK, out)
}

func (h *BoardHandlers) httpCreateBoard(c *gin.Context) {
	var body v1.CreateBoardRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	board, err := h.service.CreateBoard(c.Request.Context(), body.WorkspaceID, body.Nombre, body.Descripcion)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, board.ToAPI())
}

func (h *BoardHandlers) httpDashboard(c *gin.Context) {
	boardID, ok := paramID(c, h.logger, "boardId")
	if !ok {
		return
	}
	stats, err := h.service.Dashboard(c.Request.Context(), boardID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]v1.StatEntry, 0, len(stats))
	for _, s := range stats {
		out = append(out, v1.StatEntry{Name: s.Name, Value: s.Value, Color: s.Color})
	}
	c.JSON(http.StatusOK, out)
}

// Lists

func (h *BoardHandlers) httpBoardLists(c *gin.Context) {
	boardID, ok := paramID(c, h.logger, "boardId")
	if !ok {
		return
	}
	lists, err := h.service.BoardLists(c.Request.Context(), boardID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]*v1.List, 0, len(lists))
	for _, l := range lists {
		out = append(out, l.ToAPI())
	}
	c.JSON(http.StatusOK, out)
}

func (h *BoardHandlers) httpCreateList(c *gin.Context) {
	var body v1.CreateListRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	list, err := h.service.CreateList(c.Request.Context(), body.BoardID, body.Nombre, body.MaxWIP)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, list.ToAPI())
}

func (h *BoardHandlers) httpRenameList(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	var body v1.UpdateListRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	list, err := h.service.RenameList(c.Request.Context(), id, body.Nombre)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list.ToAPI())
}

func (h *BoardHandlers) httpDeleteList(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteList(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *BoardHandlers) httpMoveList(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	var body v1.MoveListRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	if err := h.service.MoveList(c.Request.Context(), id, *body.Position); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Cards

func (h *BoardHandlers) httpCreateCard(c *gin.Context) {
	var body v1.CreateCardRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	card, err := h.service.CreateCard(c.Request.Context(), service.CardInput{
		ListID:         body.ListaID,
		Title:          body.Nombre,
		Description:    body.Descripcion,
		DueDate:        body.FechaVencimiento.Ptr(),
		Label:          body.Etiqueta,
		AssignedUserID: body.UsuarioAsignado,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, card.ToAPI())
}

func (h *BoardHandlers) httpUpdateCard(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	var body v1.UpdateCardRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	card, err := h.service.UpdateCard(c.Request.Context(), id, service.CardPatch{
		Title:          body.Nombre,
		Description:    body.Descripcion,
		DueDate:        body.FechaVencimiento.Ptr(),
		Label:          body.Etiqueta,
		AssignedUserID: body.UsuarioAsignado,
		Status:         body.Estado,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, card.ToAPI())
}

func (h *BoardHandlers) httpDeleteCard(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteCard(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *BoardHandlers) httpMoveCard(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	var body v1.MoveCardRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	if err := h.service.MoveCard(c.Request.Context(), id, body.ListID, *body.Position); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Tasks

func (h *BoardHandlers) httpListTasks(c *gin.Context) {
	cardID, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	tasks, err := h.service.Tasks(c.Request.Context(), cardID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]*v1.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ToAPI())
	}
	c.JSON(http.StatusOK, out)
}

func (h *BoardHandlers) httpCreateTask(c *gin.Context) {
	cardID, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	var body v1.CreateTaskRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	task, err := h.service.CreateTask(c.Request.Context(), cardID, service.TaskInput{
		Name:        body.Nombre,
		Description: body.Descripcion,
		Status:      body.Estado,
		DueDate:     body.FechaVencimiento.Ptr(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task.ToAPI())
}

func (h *BoardHandlers) httpUpdateTask(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	var body v1.UpdateTaskRequest
	if !bindJSON(c, h.logger, &body) {
		return
	}
	task, err := h.service.SetTaskStatus(c.Request.Context(), id, body.Estado)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task.ToAPI())
}

func (h *BoardHandlers) httpDeleteTask(c *gin.Context) {
	id, ok := paramID(c, h.logger, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteTask(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
