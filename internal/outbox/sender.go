package outbox

import (
	"context"

	"github.com/pbraga/nexchat/internal/bus"
	"github.com/pbraga/nexchat/internal/engine"
	"go.uber.org/zap"
)

// Conn is the connection-level sink the sender drains into.
type Conn interface {
	SendChat(out engine.SendOutbound) error
	SendReadAck(counterpartID string) error
	FetchHistory(counterpartID string)
}

const queueDepth = 128

type opKind int

const (
	opSend opKind = iota
	opReadAck
)

type op struct {
	kind        opKind
	send        engine.SendOutbound
	counterpart string
}

// Sender is the engine's outbound collaborator. It decouples the event loop
// from socket writes: operations queue here and drain in order on a single
// goroutine, so a slow connection never stalls reconciliation. Failures are
// surfaced as "srv.send_failed" events; the sender does not retry.
type Sender struct {
	conn   Conn
	bus    *bus.Bus
	logger *zap.Logger
	ops    chan op
	cancel context.CancelFunc
}

// NewSender creates a sender draining into the given connection.
func NewSender(conn Conn, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		conn:   conn,
		bus:    b,
		logger: logger,
		ops:    make(chan op, queueDepth),
	}
}

// Start begins draining queued operations.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the drain loop. Queued operations are dropped.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// SendMessage queues an outbound message. Implements engine.Transport.
func (s *Sender) SendMessage(out engine.SendOutbound) {
	select {
	case s.ops <- op{kind: opSend, send: out}:
	default:
		s.fail(out, "outbox full")
	}
}

// RequestReadAck queues a read acknowledgment. Implements engine.Transport.
func (s *Sender) RequestReadAck(counterpartID string) {
	select {
	case s.ops <- op{kind: opReadAck, counterpart: counterpartID}:
	default:
		s.logger.Warn("outbox full, dropping read ack", zap.String("counterpart", counterpartID))
	}
}

// FetchHistory passes straight through; history is a concurrent-safe REST
// call with its own resolution path. Implements engine.Transport.
func (s *Sender) FetchHistory(counterpartID string) {
	s.conn.FetchHistory(counterpartID)
}

func (s *Sender) loop(ctx context.Context) {
	for {
		select {
		case o := <-s.ops:
			s.process(o)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) process(o op) {
	switch o.kind {
	case opSend:
		if err := s.conn.SendChat(o.send); err != nil {
			s.fail(o.send, err.Error())
			return
		}
		s.logger.Debug("message sent",
			zap.String("placeholder_id", o.send.PlaceholderID),
			zap.String("counterpart", o.send.RecipientID))
	case opReadAck:
		if err := s.conn.SendReadAck(o.counterpart); err != nil {
			// The server re-derives read state from the next history
			// fetch; losing an ack is not fatal.
			s.logger.Warn("read ack failed",
				zap.String("counterpart", o.counterpart), zap.Error(err))
		}
	}
}

func (s *Sender) fail(out engine.SendOutbound, reason string) {
	s.logger.Warn("send failed",
		zap.String("placeholder_id", out.PlaceholderID), zap.String("reason", reason))
	s.bus.Publish(bus.Now("srv.send_failed", engine.SendFailure{
		PlaceholderID: out.PlaceholderID,
		CounterpartID: out.RecipientID,
		Reason:        reason,
	}))
}
