package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"pairlink/internal/database"
	"pairlink/internal/testutil"
	"pairlink/internal/types"
)

func newTestMailbox(t *testing.T, db database.PairlinkRepository, replay bool) *Mailbox {
	return NewMailbox(testutil.TestLogger(t), db, replay)
}

func recvMessage(t *testing.T, sub *Subscription) types.Message {
	t.Helper()
	select {
	case msg := <-sub.C:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected message on subscription channel")
		return types.Message{}
	}
}

func TestSendNotConnected(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("AcceptedRequestExists", 1, 2).Return(false, nil)

	mb := newTestMailbox(t, db, true)
	_, err := mb.Send(1, 2, types.TextMessage, "hello", "")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendInvalidMessage(t *testing.T) {
	mb := newTestMailbox(t, &database.MockPairlinkRepository{}, true)

	tcases := []struct {
		name     string
		msgType  types.MessageType
		content  string
		imageRef string
	}{
		{name: "text without content", msgType: types.TextMessage},
		{name: "text with image ref", msgType: types.TextMessage, content: "hi", imageRef: "ref"},
		{name: "image without ref", msgType: types.ImageMessage},
		{name: "image with content", msgType: types.ImageMessage, content: "hi", imageRef: "ref"},
		{name: "unknown type", msgType: types.MessageType("VIDEO"), content: "hi"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mb.Send(1, 2, tc.msgType, tc.content, tc.imageRef)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestSendDeliversToSubscriberInOrder(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomSeq", "1:2").Return(0, nil).Once()
	db.On("GetMessages", "1:2", 0, 0, mock.Anything).Return([]database.Message{}, nil).Once()
	db.On("CreateMessage", mock.Anything).Return(database.Message{}, nil).Twice()
	db.On("AcceptedRequestExists", 1, 2).Return(true, nil)

	mb := newTestMailbox(t, db, true)

	// B subscribes to the shared room
	sub, err := mb.Subscribe(2, 1)
	assert.NoError(t, err)
	defer sub.Cancel()

	first, err := mb.Send(1, 2, types.TextMessage, "hello", "")
	assert.NoError(t, err)
	second, err := mb.Send(1, 2, types.TextMessage, "world", "")
	assert.NoError(t, err)

	assert.Equal(t, 1, first.SeqId)
	assert.Equal(t, 2, second.SeqId)
	assert.NotEqual(t, first.Id, second.Id)

	got := recvMessage(t, sub)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, types.TextMessage, got.Type)
	assert.Equal(t, 1, got.SeqId)

	got = recvMessage(t, sub)
	assert.Equal(t, "world", got.Content)
	assert.Equal(t, 2, got.SeqId)
}

func TestSendSymmetricRoom(t *testing.T) {
	// messages sent from either side land in the same sequence
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomSeq", "1:2").Return(0, nil).Once()
	db.On("CreateMessage", mock.Anything).Return(database.Message{}, nil).Twice()
	db.On("AcceptedRequestExists", mock.Anything, mock.Anything).Return(true, nil)

	mb := newTestMailbox(t, db, false)

	first, err := mb.Send(1, 2, types.TextMessage, "from a", "")
	assert.NoError(t, err)
	second, err := mb.Send(2, 1, types.TextMessage, "from b", "")
	assert.NoError(t, err)

	assert.Equal(t, first.RoomKey, second.RoomKey)
	assert.Equal(t, first.SeqId+1, second.SeqId)
}

func TestSubscribeReplaysBacklog(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomSeq", "1:2").Return(2, nil).Once()
	db.On("GetMessages", "1:2", 0, 0, 2).Return([]database.Message{
		{ExternalId: "m1", RoomKey: "1:2", SeqId: 1, SenderId: 1, Content: "hello", Type: "TEXT"},
		{ExternalId: "m2", RoomKey: "1:2", SeqId: 2, SenderId: 2, Content: "hi", Type: "TEXT"},
	}, nil).Once()

	mb := newTestMailbox(t, db, true)

	sub, err := mb.Subscribe(1, 2)
	assert.NoError(t, err)
	defer sub.Cancel()

	first := recvMessage(t, sub)
	assert.Equal(t, "m1", first.Id)
	second := recvMessage(t, sub)
	assert.Equal(t, "m2", second.Id)
}

func TestSubscribeNoReplay(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomSeq", "1:2").Return(5, nil).Once()

	mb := newTestMailbox(t, db, false)

	sub, err := mb.Subscribe(1, 2)
	assert.NoError(t, err)
	defer sub.Cancel()

	select {
	case msg := <-sub.C:
		t.Fatalf("unexpected backlog message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
	db.AssertNotCalled(t, "GetMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestClear(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomSeq", "1:2").Return(3, nil).Once()
	db.On("DeleteMessages", "1:2").Return(nil).Twice()
	db.On("GetMessages", "1:2", 0, 0, mock.Anything).Return([]database.Message{}, nil).Once()
	db.On("CreateMessage", mock.Anything).Return(database.Message{}, nil).Once()
	db.On("AcceptedRequestExists", 1, 2).Return(true, nil)

	mb := newTestMailbox(t, db, true)

	assert.NoError(t, mb.Clear("1:2"))
	// clearing an already empty room is a no-op, not an error
	assert.NoError(t, mb.Clear("1:2"))

	// a subscriber with replay enabled sees no history
	sub, err := mb.Subscribe(1, 2)
	assert.NoError(t, err)
	defer sub.Cancel()

	select {
	case msg := <-sub.C:
		t.Fatalf("unexpected message after clear: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	// the sequence restarts after a clear
	msg, err := mb.Send(1, 2, types.TextMessage, "fresh start", "")
	assert.NoError(t, err)
	assert.Equal(t, 1, msg.SeqId)
}

func TestCancelClosesChannel(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	db.On("GetRoomSeq", "1:2").Return(0, nil).Once()
	db.On("GetMessages", "1:2", 0, 0, mock.Anything).Return([]database.Message{}, nil).Maybe()

	mb := newTestMailbox(t, db, false)

	sub, err := mb.Subscribe(1, 2)
	assert.NoError(t, err)

	sub.Cancel()
	_, ok := <-sub.C
	assert.False(t, ok, "expected channel closed after cancel")

	// double cancel must not panic
	sub.Cancel()
}

func TestHistory(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("GetMessages", "1:2", 0, 0, 10).Return([]database.Message{
		{ExternalId: "m1", RoomKey: "1:2", SeqId: 1, SenderId: 1, ImageRef: "uploads/abc", Type: "IMAGE"},
	}, nil).Once()

	mb := newTestMailbox(t, db, true)
	msgs, err := mb.History(2, 1, 0, 0, 10)
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, types.ImageMessage, msgs[0].Type)
	assert.Equal(t, "uploads/abc", msgs[0].ImageRef)
}
