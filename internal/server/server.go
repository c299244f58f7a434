// Package server assembles the reference board backend: the board service,
// the live websocket hub and the gin router in front of them.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/config"
	"github.com/lizmareco/tablero/internal/common/httpmw"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/events/bus"
	"github.com/lizmareco/tablero/internal/server/handlers"
	"github.com/lizmareco/tablero/internal/server/hub"
	"github.com/lizmareco/tablero/internal/server/repository"
	"github.com/lizmareco/tablero/internal/server/service"
)

const (
	serverName      = "tablero-server"
	shutdownTimeout = 30 * time.Second
)

// Server is the reference backend.
type Server struct {
	cfg    config.ServerConfig
	svc    *service.Service
	hub    *hub.Hub
	router *gin.Engine
	logger *logger.Logger
}

// New wires a server over repo. eventBus may be nil.
func New(cfg config.ServerConfig, repo repository.Repository, eventBus bus.EventBus, log *logger.Logger) *Server {
	liveHub := hub.NewHub(log)
	svc := service.NewService(repo, eventBus, liveHub, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestID())
	router.Use(httpmw.RequestLogger(log, serverName))
	router.Use(httpmw.OtelTracing(serverName))
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serverName,
		})
	})
	handlers.RegisterRoutes(router, svc, hub.NewHandler(liveHub, log), log)

	return &Server{
		cfg:    cfg,
		svc:    svc,
		hub:    liveHub,
		router: router,
		logger: log.WithComponent("server"),
	}
}

// Service returns the board service behind the routes.
func (s *Server) Service() *service.Service {
	return s.svc
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. Live subscribers receive a going-away close frame.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	httpServer := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeoutDuration(),
		WriteTimeout: s.cfg.WriteTimeoutDuration(),
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	// Hijacked websocket connections are not tracked by Shutdown.
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// corsMiddleware allows browser and websocket clients from any origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
