package database

import "time"

type Account struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	AvatarRef    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ConnectionRequest struct {
	Id         int
	ExternalId string
	SenderId   int
	ReceiverId int
	Status     string
	CreatedAt  time.Time
	ResolvedAt time.Time
}

type Message struct {
	Id         int
	ExternalId string
	RoomKey    string
	SeqId      int
	SenderId   int
	Content    string
	ImageRef   string
	Type       string
	CreatedAt  time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	AccountId    int
	Username     string
	PasswordHash string
	AvatarRef    string
}

type CreateRequestParams struct {
	ExternalId string
	SenderId   int
	ReceiverId int
}

// PendingCount is one row of the pending-requests projection: how many
// unresolved requests a sender currently has addressed to a receiver.
type PendingCount struct {
	SenderId int
	Count    int
}
