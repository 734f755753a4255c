package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"pairlink/internal/database"
	"pairlink/internal/stats"
	"pairlink/internal/testutil"
	"pairlink/internal/types"
)

func newTestClient(t *testing.T, cs *ChatServer) *Client {
	return NewClient(types.Account{Id: 1, Username: "alice"}, nil, cs, testutil.TestLogger(t))
}

func recvServerMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected message queued for client")
		return nil
	}
}

func TestHandleJoin(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("AcceptedRequestExists", 1, 2).Return(true, nil).Twice()
	db.On("GetRoomSeq", "1:2").Return(0, nil).Once()

	su := newTestStats()
	su.On("Incr", stats.NumActiveRooms).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	client := newTestClient(t, cs)

	msg := &ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{PeerId: 2}}
	client.handleJoin(msg)

	resp := recvServerMessage(t, client)
	assert.Equal(t, 200, resp.Response.ResponseCode)
	assert.Contains(t, client.subs, 2)

	// joining the same conversation again is an ack, not a second
	// subscription
	client.handleJoin(msg)
	resp = recvServerMessage(t, client)
	assert.Equal(t, 200, resp.Response.ResponseCode)
	assert.Len(t, client.subs, 1)
}

func TestHandleJoinNotConnected(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("AcceptedRequestExists", 1, 2).Return(false, nil).Once()

	su := newTestStats()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	client := newTestClient(t, cs)

	client.handleJoin(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{PeerId: 2}})

	resp := recvServerMessage(t, client)
	assert.Equal(t, 403, resp.Response.ResponseCode)
	assert.Empty(t, client.subs)
}

func TestHandleLeave(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("AcceptedRequestExists", 1, 2).Return(true, nil).Once()
	db.On("GetRoomSeq", "1:2").Return(0, nil).Once()

	su := newTestStats()
	su.On("Incr", stats.NumActiveRooms).Once()
	su.On("Decr", stats.NumActiveRooms).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	client := newTestClient(t, cs)

	client.handleJoin(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{PeerId: 2}})
	recvServerMessage(t, client)

	client.handleLeave(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, Leave: &Leave{PeerId: 2}})
	resp := recvServerMessage(t, client)
	assert.Equal(t, 200, resp.Response.ResponseCode)
	assert.Empty(t, client.subs)
}

func TestHandleLeaveNotJoined(t *testing.T) {
	su := newTestStats()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockPairlinkRepository{}, su)
	client := newTestClient(t, cs)

	client.handleLeave(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Leave: &Leave{PeerId: 2}})
	resp := recvServerMessage(t, client)
	assert.Equal(t, 400, resp.Response.ResponseCode)
}

func TestHandlePublish(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("AcceptedRequestExists", 1, 2).Return(true, nil).Once()
	db.On("GetRoomSeq", "1:2").Return(0, nil).Once()
	db.On("CreateMessage", mock.Anything).Return(database.Message{}, nil).Once()

	su := newTestStats()
	su.On("Incr", stats.NumMessagesSent).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	client := newTestClient(t, cs)

	client.handlePublish(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Publish:     &Publish{PeerId: 2, Type: types.TextMessage, Content: "hello"},
	})

	resp := recvServerMessage(t, client)
	assert.Equal(t, 202, resp.Response.ResponseCode)
}

func TestHandlePublishErrors(t *testing.T) {
	tcases := []struct {
		name         string
		connected    bool
		publish      *Publish
		expectedCode int
	}{
		{
			name:         "not connected",
			connected:    false,
			publish:      &Publish{PeerId: 2, Type: types.TextMessage, Content: "hello"},
			expectedCode: 403,
		},
		{
			name:         "invalid message",
			connected:    true,
			publish:      &Publish{PeerId: 2, Type: types.TextMessage},
			expectedCode: 400,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockPairlinkRepository{}
			db.On("AcceptedRequestExists", 1, 2).Return(tc.connected, nil).Maybe()
			db.On("GetRoomSeq", "1:2").Return(0, nil).Maybe()

			su := newTestStats()
			defer su.AssertExpectations(t)

			cs := newTestChatServer(t, db, su)
			client := newTestClient(t, cs)

			client.handlePublish(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Publish: tc.publish})

			resp := recvServerMessage(t, client)
			assert.Equal(t, tc.expectedCode, resp.Response.ResponseCode)
		})
	}
}

func TestHandleClear(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomSeq", "1:2").Return(3, nil).Once()
	db.On("DeleteMessages", "1:2").Return(nil).Once()

	su := newTestStats()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	client := newTestClient(t, cs)

	client.handleClear(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Clear: &Clear{PeerId: 2}})

	resp := recvServerMessage(t, client)
	assert.Equal(t, 200, resp.Response.ResponseCode)

	cleared := recvServerMessage(t, client)
	assert.NotNil(t, cleared.Notification)
	assert.NotNil(t, cleared.Notification.Cleared)
	assert.Equal(t, 2, cleared.Notification.Cleared.PeerId)
}

func TestPumpNotifications(t *testing.T) {
	su := newTestStats()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockPairlinkRepository{}, su)
	client := newTestClient(t, cs)

	client.notifySub = cs.notifier.Subscribe(client.user.Id)
	go client.pumpNotifications()
	defer client.notifySub.Cancel()

	cs.notifier.Publish(types.NotificationEvent{
		Type:       types.ChatResponseEvent,
		SenderId:   2,
		ReceiverId: 1,
		Response:   types.StatusAccepted,
	})

	msg := recvServerMessage(t, client)
	assert.NotNil(t, msg.Notification)
	assert.NotNil(t, msg.Notification.ChatResponse)
	assert.Equal(t, types.StatusAccepted, msg.Notification.ChatResponse.Response)
	assert.Equal(t, 2, msg.Notification.ChatResponse.SenderId)
}

func TestCleanupCancelsSubscriptions(t *testing.T) {
	db := &database.MockPairlinkRepository{}
	defer db.AssertExpectations(t)

	db.On("AcceptedRequestExists", 1, 2).Return(true, nil).Once()
	db.On("GetRoomSeq", "1:2").Return(0, nil).Once()

	su := newTestStats()
	su.On("Incr", stats.NumActiveClients).Once()
	su.On("Incr", stats.NumActiveRooms).Once()
	su.On("Decr", stats.NumActiveRooms).Once()
	su.On("Decr", stats.NumActiveClients).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	go cs.Run()

	client := newTestClient(t, cs)
	cs.RegisterClient(client)

	client.handleJoin(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{PeerId: 2}})
	recvServerMessage(t, client)
	sub := client.subs[2]

	client.cleanup()

	assert.Empty(t, client.subs)
	_, ok := <-sub.C
	assert.False(t, ok, "expected subscription channel closed after cleanup")

	select {
	case <-client.stop:
	case <-time.After(time.Second):
		t.Fatal("expected client stopped after cleanup")
	}

	assert.Eventually(t, func() bool {
		cs.clientsLock.Lock()
		defer cs.clientsLock.Unlock()
		return len(cs.clients) == 0
	}, time.Second, 10*time.Millisecond)
}
