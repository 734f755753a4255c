// Package mailbox is the append-only message log per conversation room,
// with real-time fan-out to subscribers. Appends within one room are
// serialized, so seq ids are the authoritative order; timestamps are
// advisory. Delivery is at-least-once: a subscriber that falls behind is
// dropped and re-reads history on reconnect, deduplicating by message id.
package mailbox

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pairlink/internal/database"
	"pairlink/internal/roomkey"
	"pairlink/internal/types"
)

const liveBuffer = 256

var (
	// ErrNotConnected means the sending pair has no accepted request;
	// writes are gated here, not merely at the client.
	ErrNotConnected = errors.New("accounts are not connected")
	// ErrInvalidMessage means the message body does not match its type.
	ErrInvalidMessage = errors.New("message content does not match its type")
)

type Subscription struct {
	// C carries backlog (when replay is enabled) followed by live
	// messages, in append order. Closed on Cancel.
	C chan types.Message

	roomKey string
	mb      *Mailbox
	once    sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mb.unsubscribe(s)
	})
}

// room serializes appends and fan-out for one key. seq is loaded from
// the store when the room is first touched after process start.
type room struct {
	key         string
	seq         int
	subscribers map[*Subscription]struct{}
	lock        sync.Mutex
}

type Mailbox struct {
	log *log.Logger
	db  database.PairlinkRepository
	// replay controls whether Subscribe delivers stored history before
	// live messages; the original client always replayed, so it
	// defaults to true in config.
	replay bool

	rooms    map[string]*room
	roomLock sync.Mutex
}

func NewMailbox(logger *log.Logger, db database.PairlinkRepository, replayBacklog bool) *Mailbox {
	return &Mailbox{
		log:    logger,
		db:     db,
		replay: replayBacklog,
		rooms:  make(map[string]*room),
	}
}

// Send appends a message from senderId to its conversation with peerId.
// The room key, message id, seq and timestamp are assigned here; content
// and type come from the caller. Fails with ErrNotConnected unless the
// pair has an accepted request.
func (mb *Mailbox) Send(senderId, peerId int, msgType types.MessageType, content, imageRef string) (types.Message, error) {
	switch msgType {
	case types.TextMessage:
		if content == "" || imageRef != "" {
			return types.Message{}, ErrInvalidMessage
		}
	case types.ImageMessage:
		if imageRef == "" || content != "" {
			return types.Message{}, ErrInvalidMessage
		}
	default:
		return types.Message{}, ErrInvalidMessage
	}

	connected, err := mb.db.AcceptedRequestExists(senderId, peerId)
	if err != nil {
		return types.Message{}, fmt.Errorf("check connection: %w", err)
	}
	if !connected {
		return types.Message{}, ErrNotConnected
	}

	r, err := mb.getRoom(roomkey.Resolve(senderId, peerId))
	if err != nil {
		return types.Message{}, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	msg := types.Message{
		Id:        uuid.NewString(),
		RoomKey:   r.key,
		SeqId:     r.seq + 1,
		SenderId:  senderId,
		Content:   content,
		ImageRef:  imageRef,
		Type:      msgType,
		Timestamp: time.Now().UTC().Round(time.Millisecond),
	}

	if _, err := mb.db.CreateMessage(database.Message{
		ExternalId: msg.Id,
		RoomKey:    msg.RoomKey,
		SeqId:      msg.SeqId,
		SenderId:   msg.SenderId,
		Content:    msg.Content,
		ImageRef:   msg.ImageRef,
		Type:       string(msg.Type),
		CreatedAt:  msg.Timestamp,
	}); err != nil {
		return types.Message{}, fmt.Errorf("save message: %w", err)
	}

	// only advance the seq once the message is durable
	r.seq++

	for sub := range r.subscribers {
		select {
		case sub.C <- msg:
		default:
			mb.log.Printf("subscriber on room %q is full, dropping message %s", r.key, msg.Id)
		}
	}

	return msg, nil
}

// Subscribe opens a stream of messages for the conversation between the
// two accounts. When backlog replay is enabled the stored history is
// delivered first, in order, followed by live messages. The caller must
// Cancel the subscription; idle subscriptions are never timed out.
func (mb *Mailbox) Subscribe(accountA, accountB int) (*Subscription, error) {
	r, err := mb.getRoom(roomkey.Resolve(accountA, accountB))
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	var backlog []types.Message
	if mb.replay {
		stored, err := mb.db.GetMessages(r.key, 0, 0, r.seq)
		if err != nil {
			return nil, fmt.Errorf("load backlog: %w", err)
		}

		for _, m := range stored {
			backlog = append(backlog, messageFromDb(m))
		}
	}

	sub := &Subscription{
		C:       make(chan types.Message, len(backlog)+liveBuffer),
		roomKey: r.key,
		mb:      mb,
	}

	for _, m := range backlog {
		sub.C <- m
	}

	r.subscribers[sub] = struct{}{}

	return sub, nil
}

// Clear empties the room's message sequence. Idempotent; the room itself
// survives and new messages restart the sequence.
func (mb *Mailbox) Clear(roomKey string) error {
	r, err := mb.getRoom(roomKey)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if err := mb.db.DeleteMessages(roomKey); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	r.seq = 0
	return nil
}

// History reads the stored messages for the pair without subscribing.
func (mb *Mailbox) History(accountA, accountB, since, before, limit int) ([]types.Message, error) {
	stored, err := mb.db.GetMessages(roomkey.Resolve(accountA, accountB), since, before, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	messages := make([]types.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, messageFromDb(m))
	}

	return messages, nil
}

func (mb *Mailbox) getRoom(key string) (*room, error) {
	mb.roomLock.Lock()
	defer mb.roomLock.Unlock()

	if r, ok := mb.rooms[key]; ok {
		return r, nil
	}

	seq, err := mb.db.GetRoomSeq(key)
	if err != nil {
		return nil, fmt.Errorf("load room seq: %w", err)
	}

	r := &room{
		key:         key,
		seq:         seq,
		subscribers: make(map[*Subscription]struct{}),
	}
	mb.rooms[key] = r

	return r, nil
}

func (mb *Mailbox) unsubscribe(sub *Subscription) {
	mb.roomLock.Lock()
	r, ok := mb.rooms[sub.roomKey]
	mb.roomLock.Unlock()
	if !ok {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.subscribers[sub]; ok {
		delete(r.subscribers, sub)
		close(sub.C)
	}
}

func messageFromDb(m database.Message) types.Message {
	return types.Message{
		Id:        m.ExternalId,
		RoomKey:   m.RoomKey,
		SeqId:     m.SeqId,
		SenderId:  m.SenderId,
		Content:   m.Content,
		ImageRef:  m.ImageRef,
		Type:      types.MessageType(m.Type),
		Timestamp: m.CreatedAt,
	}
}
