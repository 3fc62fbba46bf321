package pubsub

import (
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestNewEvent(t *testing.T) {
	a := NewEvent("draft:start_draft", "d1", nil)
	b := NewEvent("draft:start_draft", "d1", nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("event ids should be unique: %q %q", a.ID, b.ID)
	}
	if a.Time.IsZero() || a.DraftID != "d1" {
		t.Fatalf("event not stamped: %+v", a)
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		draftID string
		want    string
	}{
		{"abc", "draft.events.abc"},
		{"a.b*c>d e", "draft.events.a_b_c_d_e"},
		{"", "draft.events.global"},
	}
	for _, tc := range tests {
		if got := Subject("draft.events", Event{DraftID: tc.draftID}); got != tc.want {
			t.Errorf("Subject(%q) = %q, want %q", tc.draftID, got, tc.want)
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	ps := New()
	ch1 := ps.Subscribe()
	ch2 := ps.Subscribe()
	ch3 := ps.Subscribe()
	if ps.SubscriberCount() != 3 {
		t.Fatalf("expected 3 subscribers, got %d", ps.SubscriberCount())
	}

	ps.Unsubscribe(ch2)
	if ps.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", ps.SubscriberCount())
	}
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	ps.Publish(Event{Type: "draft:pass_packs"})
	receive(t, ch1)
	receive(t, ch3)
}

func TestUnsubscribeNonexistent(t *testing.T) {
	ps := New()
	ch := make(chan Event, 1)
	ps.Unsubscribe(ch)
	// not managed by the bus, so still open
	ch <- Event{Type: "probe"}
}

func TestPublishNoSubscribers(t *testing.T) {
	New().Publish(Event{Type: "draft:complete_draft"})
}

func TestSubscribeDraftFilters(t *testing.T) {
	ps := New()
	all := ps.Subscribe()
	one := ps.SubscribeDraft("d1")

	ps.Publish(NewEvent("draft:bot_pick", "d2", nil))
	ps.Publish(NewEvent("draft:bot_pick", "d1", map[string]interface{}{"cardId": "c1"}))

	if ev := receive(t, all); ev.DraftID != "d2" {
		t.Fatalf("unfiltered subscriber got %q first", ev.DraftID)
	}
	receive(t, all)

	ev := receive(t, one)
	if ev.DraftID != "d1" || ev.Payload["cardId"] != "c1" {
		t.Fatalf("draft subscriber got %+v", ev)
	}
	select {
	case ev := <-one:
		t.Fatalf("draft subscriber got foreign event %+v", ev)
	default:
	}
}

func TestPublishDropsWhenChannelFull(t *testing.T) {
	ps := New()
	ch := ps.Subscribe()
	for i := 0; i < 15; i++ {
		ps.Publish(Event{Type: "fill"})
	}
	if len(ch) != 10 {
		t.Errorf("expected 10 buffered events, got %d", len(ch))
	}
}

func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	ps := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := ps.Subscribe()
			time.Sleep(time.Millisecond)
			ps.Unsubscribe(ch)
		}()
		go func() {
			defer wg.Done()
			ps.Publish(Event{Type: "concurrent"})
		}()
	}
	wg.Wait()
	if n := ps.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers after all unsubscribe, got %d", n)
	}
}

func TestPublishWithUpstream(t *testing.T) {
	upstream := NewMockNATSPubSub("draft.events")
	ps := NewWithUpstream(upstream)
	ch := ps.Subscribe()

	ps.Publish(NewEvent("draft:start_draft", "d1", nil))

	if upstream.GetMessageCount() != 1 {
		t.Errorf("expected 1 event published to upstream, got %d", upstream.GetMessageCount())
	}
	if ev := receive(t, ch); ev.Type != "draft:start_draft" {
		t.Errorf("expected draft:start_draft, got %s", ev.Type)
	}
}

func TestUpstreamBroadcastToLocalSubscribers(t *testing.T) {
	upstream := NewMockNATSPubSub("draft.events")
	ps := NewWithUpstream(upstream)
	ch1 := ps.Subscribe()
	ch2 := ps.Subscribe()

	// another instance publishing straight to the broker
	upstream.Publish(Event{Type: "draft:human_pick", DraftID: "remote"})

	for i, ch := range []chan Event{ch1, ch2} {
		if ev := receive(t, ch); ev.DraftID != "remote" {
			t.Errorf("subscriber %d got %+v", i, ev)
		}
	}
}

func TestMockReplayMessages(t *testing.T) {
	bus := NewMockNATSPubSub("draft.events")
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: "draft:bot_pick", Payload: map[string]interface{}{"seq": i}})
	}
	ch := make(chan Event, 10)
	bus.ReplayMessages(ch, 2)
	if len(ch) != 2 {
		t.Fatalf("replayed %d events, want 2", len(ch))
	}
	if ev := <-ch; ev.Payload["seq"] != 3 {
		t.Fatalf("first replayed event seq = %v, want 3", ev.Payload["seq"])
	}
}

func TestMockDurableConsumer(t *testing.T) {
	bus := NewMockNATSPubSub("draft.events")
	got := make(chan Event, 1)
	if err := bus.SubscribeJetStream("analytics", func(ev Event) { got <- ev }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	bus.Publish(Event{Type: "draft:human_pick"})
	receive(t, got)
	bus.Close()
	if bus.GetSubscriberCount() != 0 {
		t.Fatal("close should drop subscribers")
	}
}
