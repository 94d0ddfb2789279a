package api

import (
	"github.com/pbraga/nexchat/internal/convo"
	"github.com/pbraga/nexchat/internal/engine"
	"github.com/pbraga/nexchat/internal/model"
)

// Control API request/response bodies. The CLI is the only consumer; the
// shapes favor it over the server's wire DTOs.

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type statusResponse struct {
	Profile   string `json:"profile"`
	State     string `json:"state"`
	Username  string `json:"username,omitempty"`
	Connected bool   `json:"connected"`
	UptimeMs  int64  `json:"uptime_ms"`
}

type sendRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type sendResponse struct {
	PlaceholderID string `json:"placeholder_id"`
}

type messageDTO struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	SentAt      int64  `json:"sent_at"`
	ReadAt      int64  `json:"read_at,omitempty"`
	LocallyRead bool   `json:"locally_read"`
	FromMe      bool   `json:"from_me"`
}

type conversationDTO struct {
	CounterpartID string       `json:"counterpart_id"`
	Unread        int          `json:"unread"`
	Messages      []messageDTO `json:"messages"`
}

type summaryDTO struct {
	CounterpartID string `json:"counterpart_id"`
	Unread        int    `json:"unread"`
	LastPreview   string `json:"last_preview"`
	LastTimestamp int64  `json:"last_timestamp"`
}

type userDTO struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toMessageDTO(m *model.Message, localUser string) messageDTO {
	return messageDTO{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Status:      string(m.Status),
		SentAt:      m.SentAt,
		ReadAt:      m.ReadAt,
		LocallyRead: m.LocallyRead,
		FromMe:      m.FromMe(localUser),
	}
}

func toConversationDTO(c convo.Conversation, localUser string) conversationDTO {
	dto := conversationDTO{
		CounterpartID: c.CounterpartID,
		Unread:        c.Unread,
		Messages:      make([]messageDTO, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		dto.Messages = append(dto.Messages, toMessageDTO(m, localUser))
	}
	return dto
}

func toSummaryDTO(s engine.ConversationSummary) summaryDTO {
	return summaryDTO{
		CounterpartID: s.CounterpartID,
		Unread:        s.Unread,
		LastPreview:   s.LastPreview,
		LastTimestamp: s.LastTimestamp,
	}
}
