package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pbraga/nexchat/internal/api"
	"github.com/pbraga/nexchat/internal/profile"
	"go.uber.org/zap"
)

// Server manages the control API server bound to the profile's Unix domain
// socket.
type Server struct {
	echo       *echo.Echo
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates the control API server and registers all routes.
func NewServer(
	p Params,
	logger *zap.Logger,
	sessionSvc *api.SessionService,
	chatSvc *api.ChatService,
	eventSvc *api.EventService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Listener = listener

	e.GET("/v1/status", sessionSvc.Status)
	e.POST("/v1/login", sessionSvc.Login)
	e.POST("/v1/register", sessionSvc.Register)
	e.POST("/v1/logout", sessionSvc.Logout)
	e.GET("/v1/users", sessionSvc.Users)

	e.GET("/v1/conversations", chatSvc.ListConversations)
	e.GET("/v1/conversations/:counterpart", chatSvc.GetConversation)
	e.POST("/v1/conversations/:counterpart/open", chatSvc.OpenConversation)
	e.POST("/v1/conversations/close", chatSvc.CloseConversation)
	e.POST("/v1/messages", chatSvc.Send)

	e.GET("/v1/events", eventSvc.Stream)

	return &Server{
		echo:       e,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving control API requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("control API starting", zap.String("socket", s.socketPath))
	err := s.echo.Start("")
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("control API stopping")
	if err := s.echo.Shutdown(ctx); err != nil {
		_ = s.echo.Close()
	}
	_ = os.Remove(s.socketPath)
}
