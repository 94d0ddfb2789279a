package transport

import "encoding/json"

// Frame types exchanged on the websocket. Payload field names mirror the
// server's JSON DTOs.
const (
	// Inbound.
	frameMessage  = "chat.message"
	frameStatus   = "chat.status"
	frameAck      = "chat.ack"
	framePresence = "user.presence"

	// Outbound.
	frameSend  = "chat.send"
	frameRead  = "chat.read"
	frameJoin  = "user.join"
	frameLeave = "user.leave"
)

// envelope wraps every frame in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(frameType string, payload any) (envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Type: frameType, Payload: raw}, nil
}

// wireMessage is a chat message on the wire, in either direction.
type wireMessage struct {
	ID          string `json:"id,omitempty"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
}

// wireStatus is a delivery/read confirmation pushed by the server.
type wireStatus struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	RecipientID   string `json:"recipientId"`
	ReadTimestamp int64  `json:"readTimestamp,omitempty"`
}

// wireAck confirms a chat.send, carrying the server-assigned message id.
// Acks arrive in send order on the single connection.
type wireAck struct {
	ID string `json:"id"`
}

// wireRead asks the server to mark the counterpart's messages read.
// Field roles follow the server contract: senderId is the counterpart whose
// messages were read, recipientId is the reader.
type wireRead struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
}

// wirePresence announces a user joining or leaving ("ONLINE"/"OFFLINE").
type wirePresence struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Status   string `json:"status"`
}
