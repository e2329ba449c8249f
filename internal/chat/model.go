package chat

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------
// 🗄️ Storage & API Models
// ---------------------------------------------

// Message is a single chat entry between two users. It is never updated
// after creation.
type Message struct {
	ID          string    `json:"_id"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	DateSent    time.Time `json:"dateSent"`
	AudioFileID string    `json:"audioFileId,omitempty"`
	Text        string    `json:"text,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
}

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID string) bool {
	return userID != "" && (m.SenderID == userID || m.ReceiverID == userID)
}

// ---------------------------------------------
// ⚡ Realtime Models
// ---------------------------------------------

// PresenceEvent is what travels on the USER channel.
type PresenceEvent struct {
	UserID string `json:"_id"`
	Online bool   `json:"online"`
}

// CreateRequest is the JSON the frontend SENDS when posting a message.
// Sender and timestamp are filled in server side.
type CreateRequest struct {
	ReceiverID  string `json:"receiverId"`
	AudioFileID string `json:"audioFileId"`
	Text        string `json:"text"`
}

var (
	ErrMissingReceiver = errors.New("receiverId is required")
	ErrEmptyMessage    = errors.New("either text or audioFileId is required")
)

// Validate checks the request shape only; existence of the receiver is
// checked against the roster by the handler.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.ReceiverID) == "" {
		return ErrMissingReceiver
	}
	if strings.TrimSpace(r.Text) == "" && strings.TrimSpace(r.AudioFileID) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Between reports whether m was exchanged by exactly a and b, in either direction.
func (m *Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// ThreadKey returns the order-independent key of the conversation between a
// and b. The first id is length-prefixed, so ids containing the separator
// cannot make two different pairs share a key.
func ThreadKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}
