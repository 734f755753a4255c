package connect

import "errors"

var (
	// ErrAlreadyConnected means an accepted request already exists
	// between the pair, in either direction.
	ErrAlreadyConnected = errors.New("accounts are already connected")
	// ErrDuplicatePending means a pending request from the same sender
	// to the same receiver already exists.
	ErrDuplicatePending = errors.New("a pending request to this account already exists")
	// ErrRequestNotFound means the request no longer exists.
	ErrRequestNotFound = errors.New("request not found")
	// ErrAccountNotFound means the targeted account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrNotReceiver means an account other than the request's receiver
	// tried to resolve it.
	ErrNotReceiver = errors.New("only the receiver may respond to a request")
	// ErrInvalidDecision means the decision is neither accept nor decline.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrSelfRequest means sender and receiver are the same account.
	ErrSelfRequest = errors.New("cannot send a request to yourself")
)
