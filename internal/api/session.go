package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pbraga/nexchat/internal/engine"
	"github.com/pbraga/nexchat/internal/status"
	"github.com/pbraga/nexchat/internal/store"
	"github.com/pbraga/nexchat/internal/transport"
	"go.uber.org/zap"
)

// Connector is the slice of the transport client the session service drives.
type Connector interface {
	Connect(ctx context.Context, creds transport.Credentials) error
	Disconnect()
	Connected() bool
}

// Roster fetches the server-side user list.
type Roster interface {
	Users(ctx context.Context, token string) ([]transport.User, error)
}

// Authenticator exchanges credentials for a session token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (transport.Credentials, error)
	Register(ctx context.Context, username, fullName, password string) (transport.Credentials, error)
}

// SessionService handles auth and daemon status on the control API.
type SessionService struct {
	profileName string
	startedAt   time.Time
	machine     *status.Machine
	engine      *engine.Engine
	conn        Connector
	auth        Authenticator
	roster      Roster
	db          *store.DB
	logger      *zap.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(profileName string, machine *status.Machine, eng *engine.Engine, conn Connector, auth Authenticator, roster Roster, db *store.DB, logger *zap.Logger) *SessionService {
	return &SessionService{
		profileName: profileName,
		startedAt:   time.Now(),
		machine:     machine,
		engine:      eng,
		conn:        conn,
		auth:        auth,
		roster:      roster,
		db:          db,
		logger:      logger,
	}
}

func (s *SessionService) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Profile:   s.profileName,
		State:     string(s.machine.Current()),
		Username:  s.engine.LocalUser(),
		Connected: s.conn.Connected(),
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
	})
}

func (s *SessionService) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "username and password are required"})
	}

	creds, err := s.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return s.authError(c, err)
	}
	return s.openSession(c, creds)
}

func (s *SessionService) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "username and password are required"})
	}

	creds, err := s.auth.Register(c.Request().Context(), req.Username, req.FullName, req.Password)
	if err != nil {
		return s.authError(c, err)
	}
	return s.openSession(c, creds)
}

func (s *SessionService) Logout(c echo.Context) error {
	s.conn.Disconnect()
	s.engine.EndSession()
	if err := s.db.ClearCredentials(); err != nil {
		s.logger.Warn("clearing credentials", zap.Error(err))
	}
	if s.machine.Current() != status.AuthRequired {
		_ = s.machine.Transition(status.AuthRequired)
	}
	s.logger.Info("logged out")
	return c.NoContent(http.StatusNoContent)
}

func (s *SessionService) Users(c echo.Context) error {
	creds, err := s.db.LoadCredentials()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	if creds == nil {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "not logged in"})
	}

	users, err := s.roster.Users(c.Request().Context(), creds.Token)
	if err != nil {
		if errors.Is(err, transport.ErrAuthRequired) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "session expired, log in again"})
		}
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}

	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		if u.Username == s.engine.LocalUser() {
			continue
		}
		out = append(out, userDTO{Username: u.Username, FullName: u.FullName, Status: u.Status})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *SessionService) openSession(c echo.Context, creds transport.Credentials) error {
	if err := s.db.SaveCredentials(&store.Credentials{
		Username: creds.Username,
		FullName: creds.FullName,
		Token:    creds.Token,
	}); err != nil {
		s.logger.Warn("persisting credentials", zap.Error(err))
	}

	s.engine.StartSession(creds.Username, creds.FullName)

	if err := s.conn.Connect(context.Background(), creds); err != nil {
		s.logger.Error("connect after login", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "authenticated but could not connect: " + err.Error()})
	}

	s.logger.Info("session opened", zap.String("username", creds.Username))
	return c.JSON(http.StatusOK, statusResponse{
		Profile:   s.profileName,
		State:     string(s.machine.Current()),
		Username:  creds.Username,
		Connected: s.conn.Connected(),
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
	})
}

func (s *SessionService) authError(c echo.Context, err error) error {
	if errors.Is(err, transport.ErrAuthRequired) {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	}
	return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
}
