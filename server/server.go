// Package server exposes the conversation API over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/richinex/converse/chat"
	"github.com/richinex/converse/llm"
	"github.com/richinex/converse/storage"
)

// Server wires the HTTP surface to the chat service, gateway, and store.
type Server struct {
	echo    *echo.Echo
	service *chat.Service
	gateway *llm.Gateway
	store   storage.Store
	logger  *zap.Logger
}

// New creates the HTTP server with routing and middleware configured.
func New(service *chat.Service, gateway *llm.Gateway, store storage.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:3000", "https://localhost:3000"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	s := &Server{
		echo:    e,
		service: service,
		gateway: gateway,
		store:   store,
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/", s.root)
	s.echo.GET("/health", s.health)
	s.echo.GET("/models", s.listModels)
	s.echo.POST("/chat", s.postChat)
	s.echo.GET("/conversations", s.listConversations)
	s.echo.GET("/conversations/:id", s.getConversation)
	s.echo.GET("/conversations/:id/messages", s.getMessages)
	s.echo.DELETE("/conversations/:id/messages", s.clearConversation)
	s.echo.DELETE("/conversations/:id", s.deleteConversation)
	s.echo.PUT("/conversations/:id/title", s.updateTitle)
}

// Start serves HTTP on the given port until Shutdown.
func (s *Server) Start(port int) error {
	return s.echo.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
