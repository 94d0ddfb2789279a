package engine

import (
	"context"
	"errors"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pbraga/nexchat/internal/bus"
	"github.com/pbraga/nexchat/internal/convo"
	"github.com/pbraga/nexchat/internal/model"
	"go.uber.org/zap"
)

// echoMatchWindowMs bounds how far apart an optimistic send and its server
// echo may be timestamped and still be treated as the same logical message.
const echoMatchWindowMs = 30_000

// ErrNoSession is returned for operations that require a logged-in session.
var ErrNoSession = errors.New("no active session")

// ErrUnknownConversation is returned when a counterpart has no conversation.
var ErrUnknownConversation = errors.New("unknown conversation")

// Engine is the single authority over conversation state. Every inbound
// server event and every user intent runs on its one event loop goroutine, so
// index mutations are serialized without locks. Events are applied in arrival
// order; because status transitions are monotonic and merges idempotent, the
// converged state does not depend on that order.
type Engine struct {
	bus       *bus.Bus
	transport Transport
	logger    *zap.Logger

	cmds   chan func()
	ctx    context.Context
	cancel context.CancelFunc
	sess   *session
}

// New creates an engine. It does nothing until Start is called.
func New(b *bus.Bus, t Transport, logger *zap.Logger) *Engine {
	return &Engine{
		bus:       b,
		transport: t,
		logger:    logger,
		cmds:      make(chan func(), 64),
		ctx:       context.Background(),
	}
}

// Start subscribes to inbound server events and runs the event loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.ctx = ctx
	ch, unsub := e.bus.Subscribe("srv.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case fn := <-e.cmds:
				fn()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the event loop.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// do runs fn on the event loop and waits for it, serializing it with event
// handling. After Stop it returns without running fn, leaving the caller's
// zero values in place, so a request racing shutdown cannot hang.
func (e *Engine) do(fn func()) {
	done := make(chan struct{})
	cmd := func() {
		fn()
		close(done)
	}
	select {
	case e.cmds <- cmd:
	case <-e.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-e.ctx.Done():
	}
}

// StartSession installs fresh session state for a logged-in user, replacing
// any previous session.
func (e *Engine) StartSession(localUser, fullName string) {
	e.do(func() {
		e.sess = newSession(localUser, fullName, e.bus)
		e.logger.Info("session started", zap.String("user", localUser))
	})
}

// EndSession discards all session state. Safe to call when none is active.
func (e *Engine) EndSession() {
	e.do(func() {
		if e.sess != nil {
			e.logger.Info("session ended", zap.String("user", e.sess.localUser))
		}
		e.sess = nil
	})
}

// LocalUser returns the logged-in user id, or "" when logged out.
func (e *Engine) LocalUser() (user string) {
	e.do(func() {
		if e.sess != nil {
			user = e.sess.localUser
		}
	})
	return user
}

// Send records an optimistic outbound message with a placeholder id and hands
// it to the transport. The placeholder id is returned so callers can correlate
// later status updates once the server id is known.
func (e *Engine) Send(counterpartID, content string) (string, error) {
	var (
		placeholderID string
		err           error
	)
	e.do(func() {
		if e.sess == nil {
			err = ErrNoSession
			return
		}
		placeholderID = "temp-" + uuid.NewString()
		now := time.Now().UnixMilli()

		rec := &model.Message{
			ID:          placeholderID,
			SenderID:    e.sess.localUser,
			RecipientID: counterpartID,
			Content:     content,
			Status:      model.StatusSent,
			SentAt:      now,
		}
		e.sess.idx.Upsert(counterpartID, rec)

		out := SendOutbound{
			PlaceholderID: placeholderID,
			SenderID:      e.sess.localUser,
			RecipientID:   counterpartID,
			Content:       content,
			Timestamp:     now,
		}
		e.sess.pending[placeholderID] = out
		e.transport.SendMessage(out)
		e.publishRef("message.upserted", counterpartID, placeholderID)
	})
	return placeholderID, err
}

// Promote is the promotion hook: the transport calls it once it learns which
// server id an optimistic send resolved to. The placeholder record is rekeyed
// in place; content and sent timestamp are untouched and status only rises.
func (e *Engine) Promote(placeholderID, serverID string) {
	e.do(func() {
		if e.sess == nil {
			return
		}
		rec, ok := e.sess.idx.Rekey(placeholderID, serverID)
		if !ok {
			e.logger.Debug("promotion for unknown placeholder",
				zap.String("placeholder_id", placeholderID),
				zap.String("server_id", serverID))
			return
		}
		delete(e.sess.pending, placeholderID)
		e.publishRef("message.upserted", rec.Counterpart(e.sess.localUser), serverID)
	})
}

// OpenConversation makes a counterpart's conversation the open one: the
// unread badge is cleared and a history fetch is issued. The read
// acknowledgment, if one turns out to be owed, is decided when the fetch
// resolves. The returned snapshot is the state known right now.
func (e *Engine) OpenConversation(counterpartID string) (convo.Conversation, error) {
	var (
		snap convo.Conversation
		err  error
	)
	e.do(func() {
		if e.sess == nil {
			err = ErrNoSession
			return
		}
		e.sess.open = counterpartID
		e.sess.counter.Clear(counterpartID)
		e.transport.FetchHistory(counterpartID)
		snap, _ = e.sess.idx.Snapshot(counterpartID)
		if snap.CounterpartID == "" {
			snap.CounterpartID = counterpartID
		}
	})
	return snap, err
}

// CloseConversation marks no conversation as open.
func (e *Engine) CloseConversation() {
	e.do(func() {
		if e.sess != nil {
			e.sess.open = ""
		}
	})
}

// Conversation returns a snapshot of one conversation without opening it.
func (e *Engine) Conversation(counterpartID string) (convo.Conversation, error) {
	var (
		snap convo.Conversation
		err  error
	)
	e.do(func() {
		if e.sess == nil {
			err = ErrNoSession
			return
		}
		var ok bool
		snap, ok = e.sess.idx.Snapshot(counterpartID)
		if !ok {
			err = ErrUnknownConversation
		}
	})
	return snap, err
}

// Conversations lists all known conversations, most recent first.
func (e *Engine) Conversations() ([]ConversationSummary, error) {
	var (
		out []ConversationSummary
		err error
	)
	e.do(func() {
		if e.sess == nil {
			err = ErrNoSession
			return
		}
		for _, id := range e.sess.idx.Counterparts() {
			c := e.sess.idx.Get(id)
			s := ConversationSummary{CounterpartID: id, Unread: c.Unread}
			if n := len(c.Messages); n > 0 {
				last := c.Messages[n-1]
				s.LastPreview = truncate(last.Content, 100)
				s.LastTimestamp = last.SentAt
			}
			out = append(out, s)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastTimestamp > out[j].LastTimestamp
		})
	})
	return out, err
}

func (e *Engine) handleEvent(evt bus.Event) {
	if e.sess == nil {
		// Server events can trail a logout; there is no state to apply
		// them to.
		return
	}
	switch evt.Kind {
	case "srv.message":
		p, ok := evt.Payload.(PushMessage)
		if !ok {
			return
		}
		e.handlePushMessage(p)
	case "srv.status":
		u, ok := evt.Payload.(PushStatusUpdate)
		if !ok {
			return
		}
		e.handleStatusUpdate(u)
	case "srv.history":
		h, ok := evt.Payload.(HistoryFetchResult)
		if !ok {
			return
		}
		e.handleHistory(h)
	case "srv.undelivered":
		u, ok := evt.Payload.(UndeliveredFetchResult)
		if !ok {
			return
		}
		e.handleUndelivered(u)
	case "srv.send_failed":
		f, ok := evt.Payload.(SendFailure)
		if !ok {
			return
		}
		e.handleSendFailure(f)
	}
}

func (e *Engine) handlePushMessage(p PushMessage) {
	if p.ID == "" || p.SenderID == "" || p.RecipientID == "" {
		e.logger.Warn("dropping malformed push message",
			zap.String("id", p.ID), zap.String("sender", p.SenderID))
		return
	}
	s := e.sess

	if p.SenderID == s.localUser {
		// Echo of the local user's own message. If it confirms an
		// outstanding optimistic send, promote the placeholder instead of
		// inserting a duplicate.
		if placeholderID, ok := s.matchPending(p.RecipientID, p.Content, p.Timestamp); ok {
			rec, _ := s.idx.Rekey(placeholderID, p.ID)
			delete(s.pending, placeholderID)
			if rec != nil {
				rec.Promote(model.StatusDelivered, 0)
				e.publishRef("message.upserted", p.RecipientID, rec.ID)
			}
			return
		}
		if _, _, known := s.idx.Lookup(p.ID); known {
			return
		}
		rec, err := model.NewMessage(p.ID, p.SenderID, p.RecipientID, p.Content, model.StatusDelivered, p.Timestamp, 0)
		if err != nil {
			e.logger.Warn("dropping malformed push message", zap.Error(err))
			return
		}
		s.idx.Upsert(p.RecipientID, rec)
		e.publishRef("message.upserted", p.RecipientID, p.ID)
		return
	}

	if _, existing, known := s.idx.Lookup(p.ID); known {
		// Redelivery of a record already held. The existing record keeps
		// its status, read timestamp and locally-read flag; nothing here is
		// newly visible, so no ack and no badge change.
		if existing.Promote(model.StatusDelivered, 0) {
			e.publishRef("message.updated", p.SenderID, p.ID)
		}
		return
	}

	rec, err := model.NewMessage(p.ID, p.SenderID, p.RecipientID, p.Content, model.StatusDelivered, p.Timestamp, 0)
	if err != nil {
		e.logger.Warn("dropping malformed push message", zap.Error(err))
		return
	}
	s.idx.Upsert(p.SenderID, rec)

	if s.open == p.SenderID {
		// The conversation is on screen: acknowledge right away. The
		// authoritative status stays DELIVERED until the server confirms;
		// the locally-read flag is what the view renders in the meantime.
		rec.LocallyRead = true
		e.transport.RequestReadAck(p.SenderID)
	} else {
		s.counter.Increment(p.SenderID)
	}
	e.publishRef("message.upserted", p.SenderID, p.ID)
}

func (e *Engine) handleStatusUpdate(u PushStatusUpdate) {
	if u.ID == "" || !u.Status.Valid() {
		e.logger.Warn("dropping malformed status update",
			zap.String("id", u.ID), zap.String("status", string(u.Status)))
		return
	}
	s := e.sess

	rec, changed := s.idx.ApplyStatus(u.ID, u.Status, u.ReadTimestamp)
	if rec == nil {
		// The status update outran the message itself; the history fetch
		// will bring the record and its terminal status together.
		e.logger.Debug("status update for unknown message id", zap.String("id", u.ID))
	} else if changed {
		e.publishRef("message.updated", rec.Counterpart(s.localUser), rec.ID)
	}

	// A READ for the open conversation stands for the whole batch the
	// counterpart saw: raise every outbound record still below READ instead
	// of waiting for one event per message.
	if u.Status == model.StatusRead && u.RecipientID != "" && u.RecipientID == s.open {
		if c := s.idx.Get(s.open); c != nil {
			raised := 0
			for _, m := range c.Messages {
				if m.FromMe(s.localUser) && m.Promote(model.StatusRead, u.ReadTimestamp) {
					raised++
				}
			}
			if raised > 0 {
				e.bus.Publish(bus.Now("conversation.read", ConversationRef{CounterpartID: s.open}))
			}
		}
	}
}

func (e *Engine) handleHistory(h HistoryFetchResult) {
	if h.CounterpartID == "" {
		e.logger.Warn("dropping history result without counterpart")
		return
	}
	s := e.sess

	s.idx.ReplaceHistory(h.CounterpartID, h.Records)

	// One aggregate acknowledgment covers every unread inbound record in the
	// batch; never one per message. A fetch that resolved after the user
	// moved on is still merged, but owes nothing.
	if s.open == h.CounterpartID {
		owed := false
		if c := s.idx.Get(h.CounterpartID); c != nil {
			for _, m := range c.Messages {
				if m.SenderID == h.CounterpartID && m.Status != model.StatusRead {
					m.LocallyRead = true
					owed = true
				}
			}
		}
		if owed {
			e.transport.RequestReadAck(h.CounterpartID)
		}
	}
	e.bus.Publish(bus.Now("conversation.replaced", ConversationRef{CounterpartID: h.CounterpartID}))
}

func (e *Engine) handleUndelivered(u UndeliveredFetchResult) {
	s := e.sess

	// Group by sender so N offline messages from one counterpart cost one
	// badge update. Records already known to the index were counted when
	// they first arrived; a re-fetch must not count them twice.
	bySender := make(map[string]int)
	ackOpen := false
	for _, rec := range u.Records {
		if rec.ID == "" || rec.SenderID == "" || rec.SenderID == s.localUser {
			continue
		}
		if _, _, known := s.idx.Lookup(rec.ID); known {
			continue
		}
		s.idx.Upsert(rec.SenderID, rec)
		if s.open == rec.SenderID {
			rec.LocallyRead = true
			ackOpen = true
		} else {
			bySender[rec.SenderID]++
		}
	}
	s.counter.AddBatch(bySender)
	if ackOpen {
		e.transport.RequestReadAck(s.open)
	}
}

func (e *Engine) handleSendFailure(f SendFailure) {
	s := e.sess
	out, ok := s.pending[f.PlaceholderID]
	if !ok {
		return
	}
	delete(s.pending, f.PlaceholderID)
	// The record stays SENT; only the transport's verdict is surfaced.
	e.logger.Warn("send failed",
		zap.String("placeholder_id", f.PlaceholderID),
		zap.String("counterpart", out.RecipientID),
		zap.String("reason", f.Reason))
	e.bus.Publish(bus.Now("message.send_failed", SendFailure{
		PlaceholderID: f.PlaceholderID,
		CounterpartID: out.RecipientID,
		Reason:        f.Reason,
	}))
}

func (e *Engine) publishRef(kind, counterpartID, messageID string) {
	e.bus.Publish(bus.Now(kind, MessageRef{
		CounterpartID: counterpartID,
		MessageID:     messageID,
	}))
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
