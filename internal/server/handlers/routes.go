// Package handlers exposes the board service over the REST contract.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/server/hub"
	"github.com/lizmareco/tablero/internal/server/service"
)

// RegisterRoutes mounts every endpoint on router. Everything except
// /auth requires a bearer token. live may be nil.
func RegisterRoutes(router *gin.Engine, svc *service.Service, live *hub.Handler, log *logger.Logger) {
	accounts := NewAccountHandlers(svc, log)
	boards := NewBoardHandlers(svc, log)

	accounts.registerPublic(router)

	api := router.Group("/", RequireAuth(svc, log))
	accounts.registerHTTP(api)
	boards.registerHTTP(api)
	if live != nil {
		api.GET("/ws/boards/:id", live.HandleBoard)
	}
}
