package types

import (
	"time"
)

type Account struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	AvatarRef    string    `json:"avatar_ref,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// DirectoryEntry is an account as seen by another account: whether the
// two are connected and how many unresolved requests the entry's owner
// has sent to the viewer.
type DirectoryEntry struct {
	Account
	Connected    bool `json:"connected"`
	PendingCount int  `json:"pending_count"`
}

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDeclined RequestStatus = "declined"
)

type ConnectionRequest struct {
	Id         string        `json:"id"`
	SenderId   int           `json:"sender_id"`
	ReceiverId int           `json:"receiver_id"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at,omitempty"`
	ResolvedAt time.Time     `json:"resolved_at,omitempty"`
}

type MessageType string

const (
	TextMessage  MessageType = "TEXT"
	ImageMessage MessageType = "IMAGE"
)

// Message is immutable once appended. SeqId is the authoritative order
// within a room; Timestamp is advisory.
type Message struct {
	Id        string      `json:"id"`
	RoomKey   string      `json:"room_key"`
	SeqId     int         `json:"seq_id"`
	SenderId  int         `json:"sender_id"`
	Content   string      `json:"content,omitempty"`
	ImageRef  string      `json:"image_ref,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

const ChatResponseEvent = "chat_response"

// NotificationEvent signals a request decision back to the original
// sender. It is transient: delivered to live sessions, never stored.
type NotificationEvent struct {
	Type       string        `json:"type"`
	SenderId   int           `json:"sender_id"`
	ReceiverId int           `json:"receiver_id"`
	Response   RequestStatus `json:"response"`
	Timestamp  time.Time     `json:"timestamp"`
}
