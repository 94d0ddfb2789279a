package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/pbraga/nexchat/internal/bus"
	"github.com/pbraga/nexchat/internal/engine"
	"github.com/pbraga/nexchat/internal/model"
	"github.com/pbraga/nexchat/internal/status"
	"go.uber.org/zap"
)

// Promoter is the engine-side hook for resolving placeholder ids once the
// server assigns the real one.
type Promoter interface {
	Promote(placeholderID, serverID string)
}

// PresenceEvent is the payload of "srv.presence" bus events.
type PresenceEvent struct {
	Username string
	FullName string
	Status   string
}

// Client is the live half of the server protocol: one websocket connection
// carrying push messages, status updates, send acks and presence. Inbound
// frames become "srv." bus events; the engine never touches the socket.
type Client struct {
	rest    *REST
	wsURL   string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	promoter Promoter

	mu       sync.Mutex // session fields and inflight queue
	wmu      sync.Mutex // serializes socket writes
	conn     *websocket.Conn
	token    string
	username string
	fullName string
	inflight []string // placeholder ids awaiting server acks, send order
	cancel   context.CancelFunc
}

// NewClient creates a disconnected client for the given server base URL.
func NewClient(rest *REST, serverURL string, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Client {
	return &Client{
		rest:    rest,
		wsURL:   wsEndpoint(serverURL),
		bus:     b,
		machine: m,
		logger:  logger,
	}
}

func wsEndpoint(serverURL string) string {
	ws := strings.Replace(serverURL, "http://", "ws://", 1)
	ws = strings.Replace(ws, "https://", "wss://", 1)
	return strings.TrimRight(ws, "/") + "/ws"
}

// SetPromoter installs the promotion hook. Must be called before Connect.
func (c *Client) SetPromoter(p Promoter) {
	c.promoter = p
}

// Connect dials the websocket with the given credentials, announces the user
// as online, and starts the read loop plus the initial undelivered backfill.
func (c *Client) Connect(ctx context.Context, creds Credentials) error {
	if TokenExpired(creds.Token) {
		return ErrAuthRequired
	}

	if err := c.machine.Transition(status.Connecting); err != nil {
		c.logger.Debug("connect from unexpected state", zap.Error(err))
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.Token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		_ = c.machine.Transition(status.Error)
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrAuthRequired
		}
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.conn = conn
	c.token = creds.Token
	c.username = creds.Username
	c.fullName = creds.FullName
	c.inflight = nil
	c.cancel = cancel
	c.mu.Unlock()

	_ = c.machine.Transition(status.Syncing)

	if err := c.writeFrame(frameJoin, wirePresence{Username: creds.Username, FullName: creds.FullName, Status: "ONLINE"}); err != nil {
		c.logger.Warn("join announce failed", zap.Error(err))
	}

	go c.readLoop(ctx, conn)
	go func() {
		c.FetchUndelivered()
		_ = c.machine.Transition(status.Ready)
		c.bus.Publish(bus.Now("srv.connected", nil))
	}()

	c.logger.Info("connected", zap.String("user", creds.Username))
	return nil
}

// Disconnect announces the user as offline and closes the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	_ = c.writeFrameTo(conn, frameLeave, wirePresence{Username: c.username, FullName: c.fullName, Status: "OFFLINE"})
	if cancel != nil {
		cancel()
	}
	_ = conn.Close()
}

// Connected reports whether a websocket connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SendChat writes an outbound chat frame and remembers its placeholder id so
// the server's ack can be matched back (acks arrive in send order).
func (c *Client) SendChat(out engine.SendOutbound) error {
	c.mu.Lock()
	c.inflight = append(c.inflight, out.PlaceholderID)
	c.mu.Unlock()

	err := c.writeFrame(frameSend, wireMessage{
		SenderID:    out.SenderID,
		RecipientID: out.RecipientID,
		Content:     out.Content,
		Timestamp:   out.Timestamp,
	})
	if err != nil {
		c.mu.Lock()
		c.dropInflight(out.PlaceholderID)
		c.mu.Unlock()
		return err
	}
	return nil
}

// SendReadAck tells the server the local user has read the counterpart's
// messages.
func (c *Client) SendReadAck(counterpartID string) error {
	c.mu.Lock()
	self := c.username
	c.mu.Unlock()
	return c.writeFrame(frameRead, wireRead{SenderID: counterpartID, RecipientID: self})
}

// FetchHistory resolves the conversation history asynchronously as a
// "srv.history" event.
func (c *Client) FetchHistory(counterpartID string) {
	c.mu.Lock()
	token, self := c.token, c.username
	c.mu.Unlock()

	go func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelFn()
		records, err := c.rest.History(ctx, token, self, counterpartID)
		if err != nil {
			c.logger.Warn("history fetch failed",
				zap.String("counterpart", counterpartID), zap.Error(err))
			return
		}
		c.bus.Publish(bus.Now("srv.history", engine.HistoryFetchResult{
			CounterpartID: counterpartID,
			Records:       records,
		}))
	}()
}

// FetchUndelivered resolves the offline backfill as a "srv.undelivered"
// event. Safe to call repeatedly; the engine deduplicates by message id.
func (c *Client) FetchUndelivered() {
	c.mu.Lock()
	token, self := c.token, c.username
	c.mu.Unlock()

	ctx, cancelFn := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelFn()
	records, err := c.rest.Undelivered(ctx, token, self)
	if err != nil {
		c.logger.Warn("undelivered fetch failed", zap.Error(err))
		return
	}
	c.bus.Publish(bus.Now("srv.undelivered", engine.UndeliveredFetchResult{Records: records}))
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("connection lost", zap.Error(err))
				c.mu.Lock()
				c.conn = nil
				c.mu.Unlock()
				_ = c.machine.Transition(status.Reconnecting)
				c.bus.Publish(bus.Now("srv.disconnected", nil))
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("dropping unparseable frame", zap.Error(err))
		return
	}

	switch env.Type {
	case frameMessage:
		var m wireMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			c.logger.Warn("dropping malformed message frame", zap.Error(err))
			return
		}
		c.bus.Publish(bus.Now("srv.message", engine.PushMessage{
			ID:          m.ID,
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
		}))
	case frameStatus:
		var s wireStatus
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			c.logger.Warn("dropping malformed status frame", zap.Error(err))
			return
		}
		c.bus.Publish(bus.Now("srv.status", engine.PushStatusUpdate{
			ID:            s.ID,
			Status:        model.Status(s.Status),
			RecipientID:   s.RecipientID,
			ReadTimestamp: s.ReadTimestamp,
		}))
	case frameAck:
		var a wireAck
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			c.logger.Warn("dropping malformed ack frame", zap.Error(err))
			return
		}
		c.handleAck(a.ID)
	case framePresence:
		var p wirePresence
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn("dropping malformed presence frame", zap.Error(err))
			return
		}
		c.bus.Publish(bus.Now("srv.presence", PresenceEvent{
			Username: p.Username,
			FullName: p.FullName,
			Status:   p.Status,
		}))
		// A presence change can mean a counterpart just flushed queued
		// messages; refresh the backfill the way the original client
		// refreshed its badges.
		go c.FetchUndelivered()
	default:
		c.logger.Debug("ignoring unknown frame", zap.String("type", env.Type))
	}
}

// handleAck matches a send ack to the oldest in-flight placeholder and
// promotes it.
func (c *Client) handleAck(serverID string) {
	c.mu.Lock()
	var placeholderID string
	if len(c.inflight) > 0 {
		placeholderID = c.inflight[0]
		c.inflight = c.inflight[1:]
	}
	c.mu.Unlock()

	if placeholderID == "" {
		c.logger.Debug("ack with no in-flight send", zap.String("server_id", serverID))
		return
	}
	if c.promoter != nil {
		c.promoter.Promote(placeholderID, serverID)
	}
}

func (c *Client) dropInflight(placeholderID string) {
	for i, id := range c.inflight {
		if id == placeholderID {
			c.inflight = append(c.inflight[:i], c.inflight[i+1:]...)
			return
		}
	}
}

func (c *Client) writeFrame(frameType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.writeFrameTo(conn, frameType, payload)
}

func (c *Client) writeFrameTo(conn *websocket.Conn, frameType string, payload any) error {
	env, err := newEnvelope(frameType, payload)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frameType, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frameType, err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s frame: %w", frameType, err)
	}
	return nil
}

// TokenExpired reports whether a JWT carries an exp claim in the past. The
// signature is not checked; only the server can do that. Opaque or claimless
// tokens are assumed live.
func TokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
