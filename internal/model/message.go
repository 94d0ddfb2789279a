package model

import "fmt"

// Status is the delivery state of a message. It only ever moves forward:
// SENT -> DELIVERED -> READ.
type Status string

const (
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
)

// rank orders statuses for monotonicity checks. Unknown statuses rank 0.
var rank = map[Status]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return rank[s] > 0
}

// Rank returns the ordering of s. Higher never yields to lower.
func (s Status) Rank() int {
	return rank[s]
}

// Message is a single one-to-one chat message as tracked by the client.
// Timestamps are unix milliseconds. ReadAt is zero until the message is READ.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Content     string
	Status      Status
	SentAt      int64
	ReadAt      int64

	// LocallyRead marks a message the local user has seen in an open
	// conversation before the server confirmed the READ transition. It is a
	// render hint only; Status stays authoritative.
	LocallyRead bool
}

// NewMessage builds a validated message record. A read timestamp on a record
// that is not READ is rejected, as is an unknown status.
func NewMessage(id, senderID, recipientID, content string, status Status, sentAt, readAt int64) (*Message, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown message status %q", status)
	}
	if readAt != 0 && status != StatusRead {
		return nil, fmt.Errorf("read timestamp set on %s message %q", status, id)
	}
	return &Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Status:      status,
		SentAt:      sentAt,
		ReadAt:      readAt,
	}, nil
}

// Promote raises the message status to the given value. It reports whether the
// record changed: self-transitions and transitions that would lower the status
// are no-ops, not errors (expected under at-least-once delivery). The read
// timestamp is set exactly once, on the first transition to READ.
func (m *Message) Promote(to Status, readAt int64) bool {
	if !to.Valid() {
		return false
	}
	if to.Rank() <= m.Status.Rank() {
		return false
	}
	m.Status = to
	if to == StatusRead && m.ReadAt == 0 {
		m.ReadAt = readAt
	}
	return true
}

// Counterpart returns the participant that is not the given local user.
func (m *Message) Counterpart(localUser string) string {
	if m.SenderID == localUser {
		return m.RecipientID
	}
	return m.SenderID
}

// FromMe reports whether the message was sent by the given local user.
func (m *Message) FromMe(localUser string) bool {
	return m.SenderID == localUser
}
