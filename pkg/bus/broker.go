package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/autopilot/pkg/metrics"
	"github.com/cuemby/autopilot/pkg/types"
)

// Subscriber is a channel that receives bus messages
type Subscriber chan *Message

// Broker is an in-process message bus used by local mode and tests. It
// implements Publisher with the same at-least-once contract the HTTP
// publisher has: subscribers with a full buffer are skipped, never blocked
// on.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	messageCh   chan *Message
	stopCh      chan struct{}
}

// NewBroker creates a new broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		messageCh:   make(chan *Message, 100), // Buffer up to 100 messages
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish encodes env and delivers it to all subscribers
func (b *Broker) Publish(ctx context.Context, env *types.ActionEnvelope) (string, error) {
	data, attrs, err := encode(env)
	if err != nil {
		return "", err
	}

	msg := &Message{
		ID:         uuid.New().String(),
		Data:       data,
		Attributes: attrs,
	}

	select {
	case b.messageCh <- msg:
		metrics.ActionsPublished.Inc()
		return msg.ID, nil
	case <-b.stopCh:
		return "", ErrTransient
	case <-ctx.Done():
		return "", ErrTransient
	}
}

func (b *Broker) run() {
	for {
		select {
		case msg := <-b.messageCh:
			b.broadcast(msg)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(msg *Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- msg:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
