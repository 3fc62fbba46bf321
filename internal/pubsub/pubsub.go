package pubsub

import (
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
)

// Event is one draft notification. Types are "draft:<action_type>".
type Event struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	DraftID string                 `json:"draftId,omitempty"`
	Time    time.Time              `json:"time"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time
func NewEvent(eventType, draftID string, payload map[string]interface{}) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		DraftID: draftID,
		Time:    time.Now().UTC(),
		Payload: payload,
	}
}

// Upstream is an interface for upstream publishers (e.g., NATS)
type Upstream interface {
	Publish(Event)
	Subscribe() chan Event
	Unsubscribe(chan Event)
}

// PubSub fans events out to in-process subscribers, optionally through an
// upstream broker shared by every instance
type PubSub struct {
	fanout
	upstream Upstream
}

// New creates a PubSub that delivers locally
func New() *PubSub {
	return &PubSub{fanout: fanout{buffer: 10}}
}

// NewWithUpstream creates a PubSub that publishes through upstream. Events
// come back from the upstream subscription, so local subscribers also see
// events published by other instances.
func NewWithUpstream(upstream Upstream) *PubSub {
	ps := &PubSub{fanout: fanout{buffer: 10}, upstream: upstream}
	ch := upstream.Subscribe()
	go func() {
		for event := range ch {
			ps.deliver(event)
		}
		logger.Debug("PubSub: upstream channel closed")
	}()
	return ps
}

// Subscribe returns a channel receiving every event
func (ps *PubSub) Subscribe() chan Event {
	return ps.subscribe("")
}

// SubscribeDraft returns a channel receiving only events for draftID
func (ps *PubSub) SubscribeDraft(draftID string) chan Event {
	return ps.subscribe(draftID)
}

// Unsubscribe removes and closes a subscription channel
func (ps *PubSub) Unsubscribe(ch chan Event) {
	ps.unsubscribe(ch)
}

// Publish sends an event to every matching subscriber
func (ps *PubSub) Publish(event Event) {
	if ps.upstream != nil {
		ps.upstream.Publish(event)
		return
	}
	ps.deliver(event)
}

// SubscriberCount returns the number of live local subscriptions
func (ps *PubSub) SubscriberCount() int {
	return ps.count()
}

// Close drops every local subscription
func (ps *PubSub) Close() {
	ps.closeAll()
}
