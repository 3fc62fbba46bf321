package pubsub

import (
	"sync"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
)

type subscription struct {
	ch      chan Event
	draftID string
}

// fanout delivers events to buffered channels without blocking the
// publisher. A full channel misses the event.
type fanout struct {
	mu     sync.RWMutex
	subs   []subscription
	buffer int
}

func (f *fanout) subscribe(draftID string) chan Event {
	ch := make(chan Event, f.buffer)
	f.mu.Lock()
	f.subs = append(f.subs, subscription{ch: ch, draftID: draftID})
	n := len(f.subs)
	f.mu.Unlock()
	logger.Debug("PubSub: subscriber added", "draft_id", draftID, "total_subscribers", n)
	return ch
}

func (f *fanout) unsubscribe(ch chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub.ch == ch {
			close(ch)
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

func (f *fanout) deliver(event Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.draftID != "" && sub.draftID != event.DraftID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			logger.Warn("PubSub: skipping slow subscriber", "event_type", event.Type, "draft_id", event.DraftID)
		}
	}
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		close(sub.ch)
	}
	f.subs = nil
}
