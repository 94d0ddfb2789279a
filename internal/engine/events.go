package engine

import (
	"github.com/pbraga/nexchat/internal/model"
)

// Inbound event payloads. The transport publishes these on the bus under the
// "srv." prefix; the engine is their only consumer.

// PushMessage is a live server delivery of a message ("srv.message").
type PushMessage struct {
	ID          string
	SenderID    string
	RecipientID string
	Content     string
	Timestamp   int64
}

// PushStatusUpdate is a server-side delivery/read confirmation
// ("srv.status"). RecipientID identifies the participant whose view changed:
// for READ it is the counterpart who read the local user's messages.
type PushStatusUpdate struct {
	ID            string
	Status        model.Status
	RecipientID   string
	ReadTimestamp int64
}

// HistoryFetchResult resolves an asynchronous conversation history fetch
// ("srv.history").
type HistoryFetchResult struct {
	CounterpartID string
	Records       []*model.Message
}

// UndeliveredFetchResult resolves the offline backfill fetch
// ("srv.undelivered"): messages addressed to the local user that the server
// could not deliver live.
type UndeliveredFetchResult struct {
	Records []*model.Message
}

// SendOutbound is an outbound message handed to the transport collaborator.
// PlaceholderID stays local; the server never sees it.
type SendOutbound struct {
	PlaceholderID string
	SenderID      string
	RecipientID   string
	Content       string
	Timestamp     int64
}

// Transport is the outbound collaborator. Calls are asynchronous: the engine
// fires and forgets, and failures come back as bus events. Retry policy
// belongs to the transport, never to the engine.
type Transport interface {
	// SendMessage delivers a composed message to the server.
	SendMessage(m SendOutbound)
	// RequestReadAck tells the server the local user has seen the
	// counterpart's messages. Invoked at most once per batch of
	// newly-visible unread messages.
	RequestReadAck(counterpartID string)
	// FetchHistory requests the full conversation with a counterpart. The
	// response arrives later as a "srv.history" event.
	FetchHistory(counterpartID string)
}

// Payloads of events the engine publishes.

// MessageRef identifies a message within a conversation ("message.upserted",
// "message.updated").
type MessageRef struct {
	CounterpartID string
	MessageID     string
}

// ConversationRef identifies a whole conversation ("conversation.replaced",
// "conversation.read").
type ConversationRef struct {
	CounterpartID string
}

// SendFailure reports a send the transport gave up on
// ("message.send_failed"). The record keeps its SENT status.
type SendFailure struct {
	PlaceholderID string
	CounterpartID string
	Reason        string
}

// ConversationSummary is a render-facing digest of one conversation.
type ConversationSummary struct {
	CounterpartID string
	Unread        int
	LastPreview   string
	LastTimestamp int64
}
