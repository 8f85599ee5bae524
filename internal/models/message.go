package models

import "time"

// Message type discriminators.
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Message represents a chat message stored in a room's message list.
type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Text        string       `json:"text"`
	Time        string       `json:"time"`
	Timestamp   string       `json:"timestamp"`
	Read        bool         `json:"read"`
	Attachments []Attachment `json:"attachments"`
	Type        string       `json:"type"`
	Pinned      bool         `json:"pinned"`
	Metadata    Metadata     `json:"metadata"`
}

// Metadata captures the sender's environment at send time.
type Metadata struct {
	Device     string  `json:"device"`
	Connection string  `json:"connection"`
	Battery    float64 `json:"battery"`
}

// SentAt parses the message ordering timestamp. Messages with an
// unparseable timestamp report the zero time, which ages them out on
// the next eviction pass.
func (m Message) SentAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// RoomEvent is fanned out to subscribers of a room.
type RoomEvent struct {
	Type      string        `json:"type"`
	Room      string        `json:"room"`
	Message   *Message      `json:"message,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Users     []UserProfile `json:"users,omitempty"`
	Typing    []string      `json:"typing,omitempty"`
}

// Room event types.
const (
	EventMessage  = "message"
	EventDeleted  = "deleted"
	EventPinned   = "pinned"
	EventPresence = "presence"
	EventTyping   = "typing"
	EventSync     = "sync"
)
