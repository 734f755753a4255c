package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pairlink/internal/mailbox"
	"pairlink/internal/notify"
	"pairlink/internal/stats"
	"pairlink/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.Account
	send       chan *ServerMessage
	// subs holds the client's open conversations, keyed by peer id
	subs      map[int]*mailbox.Subscription
	subsLock  sync.Mutex
	notifySub *notify.Subscription
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewClient(user types.Account, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		subs:       make(map[int]*mailbox.Subscription),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	// route decision notifications for this account into the session
	c.notifySub = c.chatServer.notifier.Subscribe(c.user.Id)
	go c.pumpNotifications()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		switch {
		case msg.Join != nil:
			c.handleJoin(&msg)
		case msg.Leave != nil:
			c.handleLeave(&msg)
		case msg.Publish != nil:
			c.handlePublish(&msg)
		case msg.Clear != nil:
			c.handleClear(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) handleJoin(msg *ClientMessage) {
	peerId := msg.Join.PeerId

	connected, err := c.chatServer.requests.IsConnected(c.user.Id, peerId)
	if err != nil {
		c.log.Println("IsConnected:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}
	if !connected {
		c.queueMessage(ErrNotConnected(msg.Id))
		return
	}

	c.subsLock.Lock()
	if _, ok := c.subs[peerId]; ok {
		c.subsLock.Unlock()
		// already joined; treat as a no-op ack
		c.queueMessage(NoErrOK(msg.Id, nil))
		return
	}

	sub, err := c.chatServer.mailbox.Subscribe(c.user.Id, peerId)
	if err != nil {
		c.subsLock.Unlock()
		c.log.Println("Subscribe:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.subs[peerId] = sub
	c.subsLock.Unlock()

	c.chatServer.stats.Incr(stats.NumActiveRooms)
	go c.pumpMessages(sub)

	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (c *Client) handleLeave(msg *ClientMessage) {
	c.subsLock.Lock()
	sub, ok := c.subs[msg.Leave.PeerId]
	if ok {
		delete(c.subs, msg.Leave.PeerId)
	}
	c.subsLock.Unlock()

	if !ok {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	sub.Cancel()
	c.chatServer.stats.Decr(stats.NumActiveRooms)
	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (c *Client) handlePublish(msg *ClientMessage) {
	pub := msg.Publish
	_, err := c.chatServer.mailbox.Send(c.user.Id, pub.PeerId, pub.Type, pub.Content, pub.ImageRef)
	if err != nil {
		switch {
		case errors.Is(err, mailbox.ErrNotConnected):
			c.queueMessage(ErrNotConnected(msg.Id))
		case errors.Is(err, mailbox.ErrInvalidMessage):
			c.queueMessage(ErrInvalidMessage(msg.Id))
		default:
			c.log.Println("Send:", err)
			c.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	c.chatServer.stats.Incr(stats.NumMessagesSent)
	c.queueMessage(NoErrAccepted(msg.Id))
}

func (c *Client) handleClear(msg *ClientMessage) {
	if err := c.chatServer.requests.ClearHistory(c.user.Id, msg.Clear.PeerId); err != nil {
		c.log.Println("ClearHistory:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, nil))

	// explicit signal so the session blanks the thread without a rejoin
	c.queueMessage(&ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{Cleared: &Cleared{PeerId: msg.Clear.PeerId}},
	})
}

// pumpMessages forwards a conversation subscription into the session's
// send channel until the subscription is cancelled.
func (c *Client) pumpMessages(sub *mailbox.Subscription) {
	for msg := range sub.C {
		m := msg
		c.queueMessage(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Message:     &m,
		})
	}
}

func (c *Client) pumpNotifications() {
	for event := range c.notifySub.C {
		ev := event
		c.queueMessage(&ServerMessage{
			BaseMessage:  BaseMessage{Timestamp: Now()},
			Notification: &Notification{ChatResponse: &ev},
		})
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.subsLock.Lock()
	for peerId, sub := range c.subs {
		sub.Cancel()
		delete(c.subs, peerId)
		c.chatServer.stats.Decr(stats.NumActiveRooms)
	}
	c.subsLock.Unlock()

	if c.notifySub != nil {
		c.notifySub.Cancel()
	}

	c.chatServer.deRegisterChan <- c
	c.stopClient()
}
