package fixer

import (
	"context"
	"sync"

	"github.com/cuemby/autopilot/pkg/bus"
	"github.com/cuemby/autopilot/pkg/log"
)

// Consumer drains envelopes from an in-process broker subscription and
// feeds them to the fixer. Used by local mode, where supervisor and fixer
// share one process instead of a push subscription.
type Consumer struct {
	fixer  *Fixer
	broker *bus.Broker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer on broker
func NewConsumer(f *Fixer, broker *bus.Broker) *Consumer {
	return &Consumer{
		fixer:  f,
		broker: broker,
		stopCh: make(chan struct{}),
	}
}

// Start begins consuming
func (c *Consumer) Start() {
	sub := c.broker.Subscribe()
	c.wg.Add(1)
	go c.run(sub)
}

// Stop stops the consumer and waits for the in-flight envelope to reach
// its terminal incident write.
func (c *Consumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Consumer) run(sub bus.Subscriber) {
	defer c.wg.Done()

	for {
		select {
		case msg, ok := <-sub:
			if !ok {
				return
			}
			c.handle(msg)
		case <-c.stopCh:
			c.broker.Unsubscribe(sub)
			// Drain what was already buffered before unsubscribing closed
			// the channel
			for msg := range sub {
				c.handle(msg)
			}
			return
		}
	}
}

func (c *Consumer) handle(msg *bus.Message) {
	env, err := bus.Decode(msg.Data)
	if err != nil {
		// Poison message: log and drop, never block the queue
		log.Errorf("unparseable envelope on broker, dropping", err)
		return
	}
	if err := c.fixer.HandleEnvelope(context.Background(), env); err != nil {
		logger := log.WithIncidentID(env.IncidentID)
		logger.Error().Err(err).Msg("envelope handling failed")
	}
}
