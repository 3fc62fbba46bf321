package pubsub

import (
	"context"
	"sync"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
)

// MockNATSPubSub is an in-memory stand-in for the JetStream bus. It keeps
// the most recent events so late subscribers can replay them.
type MockNATSPubSub struct {
	fanout
	subject string

	histMu      sync.RWMutex
	messages    []Event
	maxMessages int
}

// NewMockNATSPubSub creates an in-memory bus for subject
func NewMockNATSPubSub(subject string) *MockNATSPubSub {
	logger.Info("Using mock NATS pub/sub", "subject", subject)
	return &MockNATSPubSub{
		fanout:      fanout{buffer: 100},
		subject:     subject,
		maxMessages: 1000,
	}
}

// Publish stores the event and delivers it to subscribers
func (p *MockNATSPubSub) Publish(event Event) {
	p.histMu.Lock()
	p.messages = append(p.messages, event)
	if len(p.messages) > p.maxMessages {
		p.messages = p.messages[len(p.messages)-p.maxMessages:]
	}
	p.histMu.Unlock()

	logger.Debug("Mock NATS: published event", "event_type", event.Type, "subject", Subject(p.subject, event))
	p.deliver(event)
}

// Subscribe creates a subscription channel for events
func (p *MockNATSPubSub) Subscribe() chan Event {
	return p.subscribe("")
}

// Unsubscribe removes a subscription channel
func (p *MockNATSPubSub) Unsubscribe(ch chan Event) {
	p.unsubscribe(ch)
}

// SubscribeJetStream runs handler for every event published after the call
func (p *MockNATSPubSub) SubscribeJetStream(consumerName string, handler func(Event)) error {
	ch := p.Subscribe()
	go func() {
		for event := range ch {
			handler(event)
		}
		logger.Debug("Mock NATS: durable subscription closed", "consumer", consumerName)
	}()
	return nil
}

// ReplayMessages sends up to count of the most recent events to ch
func (p *MockNATSPubSub) ReplayMessages(ch chan Event, count int) {
	p.histMu.RLock()
	defer p.histMu.RUnlock()

	start := max(0, len(p.messages)-count)
	for _, event := range p.messages[start:] {
		select {
		case ch <- event:
		default:
			logger.Warn("Mock NATS: channel full during replay, skipping event", "event_type", event.Type)
		}
	}
}

// GetMessageCount returns the number of stored events
func (p *MockNATSPubSub) GetMessageCount() int {
	p.histMu.RLock()
	defer p.histMu.RUnlock()
	return len(p.messages)
}

// GetSubscriberCount returns the number of active subscribers
func (p *MockNATSPubSub) GetSubscriberCount() int {
	return p.count()
}

// Ping always succeeds
func (p *MockNATSPubSub) Ping(ctx context.Context) error {
	return nil
}

// Close closes all subscriptions
func (p *MockNATSPubSub) Close() {
	p.closeAll()
}
