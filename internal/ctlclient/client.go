package ctlclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrDaemonNotRunning is returned when the profile socket cannot be reached.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// Client talks to a running daemon over its profile Unix domain socket.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates a client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		// The host is ignored; the dialer always hits the socket.
		baseURL: "http://nexchat",
		http:    &http.Client{Transport: transport, Timeout: 30 * time.Second},
	}
}

// Status reports daemon state.
type Status struct {
	Profile   string `json:"profile"`
	State     string `json:"state"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
	UptimeMs  int64  `json:"uptime_ms"`
}

// Summary is one row of the conversation list.
type Summary struct {
	CounterpartID string `json:"counterpart_id"`
	Unread        int    `json:"unread"`
	LastPreview   string `json:"last_preview"`
	LastTimestamp int64  `json:"last_timestamp"`
}

// Message is a single message in a conversation snapshot.
type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	SentAt      int64  `json:"sent_at"`
	ReadAt      int64  `json:"read_at"`
	LocallyRead bool   `json:"locally_read"`
	FromMe      bool   `json:"from_me"`
}

// Conversation is a full conversation snapshot.
type Conversation struct {
	CounterpartID string    `json:"counterpart_id"`
	Unread        int       `json:"unread"`
	Messages      []Message `json:"messages"`
}

// User is a roster entry.
type User struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Status   string `json:"status"`
}

// Event is one server-sent event from the daemon's event stream.
type Event struct {
	Kind string
	Data json.RawMessage
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.get(ctx, "/v1/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*Status, error) {
	var out Status
	body := map[string]string{"username": username, "password": password}
	if err := c.post(ctx, "/v1/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, username, fullName, password string) (*Status, error) {
	var out Status
	body := map[string]string{"username": username, "full_name": fullName, "password": password}
	if err := c.post(ctx, "/v1/register", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/v1/logout", nil, nil)
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.get(ctx, "/v1/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Conversations(ctx context.Context) ([]Summary, error) {
	var out []Summary
	if err := c.get(ctx, "/v1/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Conversation(ctx context.Context, counterpartID string) (*Conversation, error) {
	var out Conversation
	if err := c.get(ctx, "/v1/conversations/"+counterpartID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Open(ctx context.Context, counterpartID string) (*Conversation, error) {
	var out Conversation
	if err := c.post(ctx, "/v1/conversations/"+counterpartID+"/open", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.post(ctx, "/v1/conversations/close", nil, nil)
}

func (c *Client) Send(ctx context.Context, recipientID, content string) (string, error) {
	var out struct {
		PlaceholderID string `json:"placeholder_id"`
	}
	body := map[string]string{"recipient_id": recipientID, "content": content}
	if err := c.post(ctx, "/v1/messages", body, &out); err != nil {
		return "", err
	}
	return out.PlaceholderID, nil
}

// Watch streams daemon events until ctx is cancelled or the stream closes.
// The handler runs on the reading goroutine's caller.
func (c *Client) Watch(ctx context.Context, handler func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return err
	}

	// No client timeout; the stream is long-lived.
	streaming := &http.Client{Transport: c.http.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		return c.dialError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var evt Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			evt.Kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			evt.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "":
			if evt.Kind != "" {
				handler(evt)
			}
			evt = Event{}
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.roundTrip(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.roundTrip(req, out)
}

func (c *Client) roundTrip(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return c.dialError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) dialError(err error) error {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return ErrDaemonNotRunning
	}
	if strings.Contains(err.Error(), "connect:") || strings.Contains(err.Error(), "no such file") {
		return ErrDaemonNotRunning
	}
	return err
}
