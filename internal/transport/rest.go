package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pbraga/nexchat/internal/model"
	"go.uber.org/zap"
)

// ErrAuthRequired signals a rejected or expired token; the caller must log in
// again before retrying.
var ErrAuthRequired = errors.New("authentication required")

// Credentials is what the server hands back on login/register.
type Credentials struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Token    string `json:"token"`
}

// User is a roster entry from GET /users.
type User struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Status   string `json:"status"`
}

// historyRecord is the server's message DTO on the REST surface.
type historyRecord struct {
	ID            string `json:"id"`
	SenderID      string `json:"senderId"`
	RecipientID   string `json:"recipientId"`
	Content       string `json:"content"`
	Status        string `json:"status"`
	SentTimestamp int64  `json:"timeStamp"`
	ReadTimestamp int64  `json:"readTimestamp,omitempty"`
}

// REST is the request/response half of the server protocol: auth, history
// backfill, undelivered fetch, and the roster.
type REST struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewREST creates a REST client for the given server base URL.
func NewREST(baseURL string, logger *zap.Logger) *REST {
	return &REST{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Login exchanges a username and password for a token.
func (r *REST) Login(ctx context.Context, username, password string) (Credentials, error) {
	var creds Credentials
	err := r.post(ctx, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &creds)
	return creds, err
}

// Register creates an account and returns its first token.
func (r *REST) Register(ctx context.Context, username, fullName, password string) (Credentials, error) {
	var creds Credentials
	err := r.post(ctx, "/api/auth/register", "", map[string]string{
		"username": username,
		"fullName": fullName,
		"password": password,
	}, &creds)
	return creds, err
}

// History fetches the full conversation between the local user and a
// counterpart, ordered by sent timestamp.
func (r *REST) History(ctx context.Context, token, self, counterpartID string) ([]*model.Message, error) {
	var records []historyRecord
	path := "/messages/" + url.PathEscape(self) + "/" + url.PathEscape(counterpartID)
	if err := r.get(ctx, path, token, &records); err != nil {
		return nil, err
	}
	return r.decodeRecords(records)
}

// Undelivered fetches messages addressed to the local user that the server
// could not deliver live.
func (r *REST) Undelivered(ctx context.Context, token, self string) ([]*model.Message, error) {
	var records []historyRecord
	if err := r.get(ctx, "/messages/undelivered/"+url.PathEscape(self), token, &records); err != nil {
		return nil, err
	}
	return r.decodeRecords(records)
}

// Users fetches the online roster.
func (r *REST) Users(ctx context.Context, token string) ([]User, error) {
	var users []User
	if err := r.get(ctx, "/users", token, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *REST) decodeRecords(records []historyRecord) ([]*model.Message, error) {
	out := make([]*model.Message, 0, len(records))
	for _, rec := range records {
		m, err := model.NewMessage(rec.ID, rec.SenderID, rec.RecipientID, rec.Content,
			model.Status(rec.Status), rec.SentTimestamp, rec.ReadTimestamp)
		if err != nil {
			// One bad record must not sink the batch.
			r.logger.Warn("dropping malformed history record",
				zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *REST) post(ctx context.Context, path, token string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.roundTrip(req, token, out)
}

func (r *REST) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	return r.roundTrip(req, token, out)
}

func (r *REST) roundTrip(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthRequired
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
