package pubsub

import (
	"sync"
	"testing"
	"time"
)

func newEmbedded(t *testing.T) *EmbeddedNATSPubSub {
	t.Helper()
	ps, err := NewEmbeddedNATSPubSub(DefaultEmbeddedNATSOptions())
	if err != nil {
		t.Fatalf("Failed to create embedded NATS: %v", err)
	}
	t.Cleanup(ps.Close)
	return ps
}

func TestNewEmbeddedNATSPubSub(t *testing.T) {
	ps := newEmbedded(t)
	if ps.server == nil || ps.nc == nil || ps.js == nil {
		t.Fatal("server, connection and JetStream context should be set")
	}
	if ps.GetServerURL() == "" {
		t.Error("server URL should not be empty")
	}
}

func TestEmbeddedNATSSubscribeUnsubscribe(t *testing.T) {
	ps := newEmbedded(t)

	ch := ps.Subscribe()
	if ps.GetSubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", ps.GetSubscriberCount())
	}
	ps.Unsubscribe(ch)
	if ps.GetSubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", ps.GetSubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestEmbeddedNATSPublishAndReceive(t *testing.T) {
	ps := newEmbedded(t)
	ch1 := ps.Subscribe()
	ch2 := ps.Subscribe()

	event := NewEvent("draft:human_pick", "d-1", map[string]interface{}{"cardId": "neo-12", "pickNumber": 3.0})
	ps.Publish(event)

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.ID != event.ID || received.Type != event.Type || received.DraftID != "d-1" {
				t.Errorf("subscriber %d: got %+v", i, received)
			}
			if received.Payload["cardId"] != "neo-12" || received.Payload["pickNumber"] != 3.0 {
				t.Errorf("subscriber %d: payload mismatch %v", i, received.Payload)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestEmbeddedNATSConcurrentPublish(t *testing.T) {
	ps := newEmbedded(t)
	ch := ps.Subscribe()

	var wg sync.WaitGroup
	numDrafts := 5
	eventsPerDraft := 10
	for i := 0; i < numDrafts; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerDraft; j++ {
				ps.Publish(NewEvent("draft:bot_pick", "draft-"+string(rune('a'+id)), map[string]interface{}{"seq": j}))
			}
		}(i)
	}
	wg.Wait()

	received := 0
	timeout := time.After(5 * time.Second)
	for received < numDrafts*eventsPerDraft {
		select {
		case <-ch:
			received++
		case <-timeout:
			t.Fatalf("received %d/%d events before timeout", received, numDrafts*eventsPerDraft)
		}
	}
}

func TestEmbeddedNATSDurableConsumer(t *testing.T) {
	ps := newEmbedded(t)

	got := make(chan Event, 10)
	if err := ps.SubscribeJetStream("analytics", func(ev Event) { got <- ev }); err != nil {
		t.Fatalf("durable subscribe: %v", err)
	}
	ps.Publish(NewEvent("draft:bot_pick", "d-2", nil))

	select {
	case ev := <-got:
		if ev.DraftID != "d-2" {
			t.Errorf("draft id = %q", ev.DraftID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("durable consumer did not receive the event")
	}
}

func TestEmbeddedNATSClose(t *testing.T) {
	ps, err := NewEmbeddedNATSPubSub(DefaultEmbeddedNATSOptions())
	if err != nil {
		t.Fatalf("Failed to create embedded NATS: %v", err)
	}
	ch := ps.Subscribe()
	ps.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("channel should be closed after Close()")
		}
	default:
		t.Error("channel should be closed and readable")
	}
}

func TestEmbeddedNATSCustomOptions(t *testing.T) {
	ps, err := NewEmbeddedNATSPubSub(EmbeddedNATSOptions{
		Subject:    "custom.events",
		StreamName: "CUSTOM_STREAM",
	})
	if err != nil {
		t.Fatalf("Failed to create embedded NATS with custom options: %v", err)
	}
	defer ps.Close()

	if ps.prefix != "custom.events" {
		t.Errorf("expected subject prefix custom.events, got %s", ps.prefix)
	}
	if _, err := ps.js.StreamInfo("CUSTOM_STREAM"); err != nil {
		t.Errorf("custom stream missing: %v", err)
	}
}

func TestDefaultEmbeddedNATSOptions(t *testing.T) {
	opts := DefaultEmbeddedNATSOptions()
	if opts.Port != -1 {
		t.Errorf("expected port -1 (random), got %d", opts.Port)
	}
	if opts.Subject != "draft.events" || opts.StreamName != "DRAFT_EVENTS" {
		t.Errorf("unexpected defaults %+v", opts)
	}
}
