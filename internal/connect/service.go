// Package connect owns the chat-request lifecycle: creating requests,
// resolving them, and deriving the connected relation that gates
// messaging between two accounts.
package connect

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/teris-io/shortid"

	"pairlink/internal/database"
	"pairlink/internal/notify"
	"pairlink/internal/roomkey"
	"pairlink/internal/types"
)

type Decision string

const (
	Accept  Decision = "accept"
	Decline Decision = "decline"
)

// pendingPairConstraint is the partial unique index enforcing at most
// one pending request per ordered (sender, receiver) pair. The insert
// relies on it instead of a check-then-act query.
const pendingPairConstraint = "connection_requests_pending_pair"

// Cleaner empties a room's message sequence. Implemented by the
// conversation mailbox.
type Cleaner interface {
	Clear(roomKey string) error
}

type Service struct {
	log      *log.Logger
	db       database.PairlinkRepository
	notifier notify.Notifier
	cleaner  Cleaner

	generateRequestId func() (string, error)
}

func NewService(logger *log.Logger, db database.PairlinkRepository, notifier notify.Notifier, cleaner Cleaner) *Service {
	return &Service{
		log:               logger,
		db:                db,
		notifier:          notifier,
		cleaner:           cleaner,
		generateRequestId: shortid.Generate,
	}
}

// CreateRequest opens a pending request from sender to receiver. It
// fails with ErrAlreadyConnected if the pair is connected in either
// direction and with ErrDuplicatePending if the sender already has an
// unresolved request to this receiver. The duplicate check is enforced
// by the store's unique index, so two concurrent creates cannot both
// succeed.
func (s *Service) CreateRequest(senderId, receiverId int) (types.ConnectionRequest, error) {
	if senderId == receiverId {
		return types.ConnectionRequest{}, ErrSelfRequest
	}

	if _, err := s.db.GetAccountById(receiverId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ConnectionRequest{}, ErrAccountNotFound
		}
		return types.ConnectionRequest{}, fmt.Errorf("get receiver: %w", err)
	}

	connected, err := s.db.AcceptedRequestExists(senderId, receiverId)
	if err != nil {
		return types.ConnectionRequest{}, fmt.Errorf("check accepted: %w", err)
	}
	if connected {
		return types.ConnectionRequest{}, ErrAlreadyConnected
	}

	rid, err := s.generateRequestId()
	if err != nil {
		return types.ConnectionRequest{}, fmt.Errorf("generate request id: %w", err)
	}

	req, err := s.db.CreateRequest(database.CreateRequestParams{
		ExternalId: rid,
		SenderId:   senderId,
		ReceiverId: receiverId,
	})
	if err != nil {
		if database.IsUniqueViolation(err, pendingPairConstraint) {
			return types.ConnectionRequest{}, ErrDuplicatePending
		}
		return types.ConnectionRequest{}, fmt.Errorf("create request: %w", err)
	}

	s.log.Printf("created request %q from %d to %d", req.ExternalId, senderId, receiverId)

	return requestFromDb(req), nil
}

// Respond resolves a pending request. Only the receiver may respond.
// Responding to a request already resolved to the same decision is a
// no-op; resolved requests are terminal, so a conflicting decision is
// also a no-op rather than a transition. On a real transition the
// original sender is notified with the decision.
func (s *Service) Respond(requestId string, responderId int, decision Decision) error {
	var status types.RequestStatus
	switch decision {
	case Accept:
		status = types.StatusAccepted
	case Decline:
		status = types.StatusDeclined
	default:
		return ErrInvalidDecision
	}

	req, err := s.db.GetRequestByExternalId(requestId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("get request: %w", err)
	}

	if req.ReceiverId != responderId {
		return ErrNotReceiver
	}

	transitioned, err := s.db.ResolveRequest(requestId, string(status))
	if err != nil {
		return fmt.Errorf("resolve request: %w", err)
	}

	if !transitioned {
		// already resolved; terminal states never transition again
		s.log.Printf("request %q already resolved, ignoring %s", requestId, decision)
		return nil
	}

	s.log.Printf("request %q from %d resolved to %s", requestId, req.SenderId, status)

	// advisory signal to the sender; a delivery failure must not roll
	// back the resolution
	s.notifier.Publish(types.NotificationEvent{
		Type:       types.ChatResponseEvent,
		SenderId:   req.ReceiverId,
		ReceiverId: req.SenderId,
		Response:   status,
		Timestamp:  time.Now().UTC(),
	})

	return nil
}

// IsConnected reports whether an accepted request exists between the
// pair, checked in both directions.
func (s *Service) IsConnected(accountA, accountB int) (bool, error) {
	return s.db.AcceptedRequestExists(accountA, accountB)
}

// ListPending returns the unresolved requests addressed to the account.
// Each call re-queries the store, so repeated calls observe current
// state rather than a snapshot.
func (s *Service) ListPending(receiverId int) ([]types.ConnectionRequest, error) {
	dbReqs, err := s.db.ListPendingRequests(receiverId)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	requests := make([]types.ConnectionRequest, 0, len(dbReqs))
	for _, req := range dbReqs {
		requests = append(requests, requestFromDb(req))
	}

	return requests, nil
}

// PendingCounts is the read-side projection of pending requests per
// sender for the given receiver.
func (s *Service) PendingCounts(receiverId int) (map[int]int, error) {
	rows, err := s.db.CountPendingBySender(receiverId)
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}

	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.SenderId] = row.Count
	}

	return counts, nil
}

// ClearHistory empties the conversation room for the pair. Request
// status is untouched: a cleared pair stays connected.
func (s *Service) ClearHistory(accountA, accountB int) error {
	return s.cleaner.Clear(roomkey.Resolve(accountA, accountB))
}

func requestFromDb(req database.ConnectionRequest) types.ConnectionRequest {
	return types.ConnectionRequest{
		Id:         req.ExternalId,
		SenderId:   req.SenderId,
		ReceiverId: req.ReceiverId,
		Status:     types.RequestStatus(req.Status),
		CreatedAt:  req.CreatedAt,
		ResolvedAt: req.ResolvedAt,
	}
}
