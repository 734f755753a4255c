// Package notify is an in-process pub/sub channel for transient
// NotificationEvents. Events are delivered to live subscribers keyed by
// the receiving account and are never persisted: a subscriber that is
// offline when an event fires simply does not see it.
package notify

import (
	"log"
	"sync"

	"pairlink/internal/types"
)

const subscriberBuffer = 16

type Notifier interface {
	Publish(event types.NotificationEvent)
}

type Subscription struct {
	C         chan types.NotificationEvent
	accountId int
	bus       *Bus
}

func (s *Subscription) Cancel() {
	s.bus.cancel(s)
}

type Bus struct {
	log         *log.Logger
	subscribers map[int]map[*Subscription]struct{}
	lock        sync.RWMutex
}

func NewBus(logger *log.Logger) *Bus {
	return &Bus{
		log:         logger,
		subscribers: make(map[int]map[*Subscription]struct{}),
	}
}

// Subscribe registers for events addressed to accountId. The caller must
// Cancel the subscription when done; the bus never times it out.
func (b *Bus) Subscribe(accountId int) *Subscription {
	sub := &Subscription{
		C:         make(chan types.NotificationEvent, subscriberBuffer),
		accountId: accountId,
		bus:       b,
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if b.subscribers[accountId] == nil {
		b.subscribers[accountId] = make(map[*Subscription]struct{})
	}
	b.subscribers[accountId][sub] = struct{}{}

	return sub
}

// Publish delivers event to every live subscription for its receiver.
// A subscriber whose buffer is full is skipped rather than blocking the
// publisher; the event is advisory, not authoritative state.
func (b *Bus) Publish(event types.NotificationEvent) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	for sub := range b.subscribers[event.ReceiverId] {
		select {
		case sub.C <- event:
		default:
			b.log.Printf("dropping notification for account %d, subscriber buffer full", event.ReceiverId)
		}
	}
}

func (b *Bus) cancel(sub *Subscription) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if subs, ok := b.subscribers[sub.accountId]; ok {
		if _, ok := subs[sub]; !ok {
			return
		}

		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscribers, sub.accountId)
		}
		close(sub.C)
	}
}
