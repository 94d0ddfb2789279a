package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pbraga/nexchat/internal/engine"
)

// ChatService exposes conversation state and sending on the control API.
type ChatService struct {
	engine *engine.Engine
}

// NewChatService creates a new chat service backed by the engine.
func NewChatService(eng *engine.Engine) *ChatService {
	return &ChatService{engine: eng}
}

func (s *ChatService) ListConversations(c echo.Context) error {
	summaries, err := s.engine.Conversations()
	if err != nil {
		return s.engineError(c, err)
	}
	out := make([]summaryDTO, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, toSummaryDTO(sum))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *ChatService) GetConversation(c echo.Context) error {
	snap, err := s.engine.Conversation(c.Param("counterpart"))
	if err != nil {
		return s.engineError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationDTO(snap, s.engine.LocalUser()))
}

// OpenConversation marks the conversation as the visible one: the unread
// badge resets and a history refresh is kicked off server-side.
func (s *ChatService) OpenConversation(c echo.Context) error {
	snap, err := s.engine.OpenConversation(c.Param("counterpart"))
	if err != nil {
		return s.engineError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationDTO(snap, s.engine.LocalUser()))
}

func (s *ChatService) CloseConversation(c echo.Context) error {
	s.engine.CloseConversation()
	return c.NoContent(http.StatusNoContent)
}

func (s *ChatService) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request"})
	}
	if req.RecipientID == "" || req.Content == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "recipient_id and content are required"})
	}

	placeholderID, err := s.engine.Send(req.RecipientID, req.Content)
	if err != nil {
		return s.engineError(c, err)
	}
	return c.JSON(http.StatusAccepted, sendResponse{PlaceholderID: placeholderID})
}

func (s *ChatService) engineError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, engine.ErrNoSession):
		return c.JSON(http.StatusConflict, errorResponse{Error: "no active session, log in first"})
	case errors.Is(err, engine.ErrUnknownConversation):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown conversation"})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}
