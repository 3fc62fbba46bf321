package clickhouse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/pubsub"
)

// Recorder turns pick events into pick records and flushes them to a sink
// in batches
type Recorder struct {
	sink      PickSink
	batchSize int

	mu      sync.Mutex
	pending []PickRecord
}

// NewRecorder creates a recorder flushing every batchSize picks
func NewRecorder(sink PickSink, batchSize int) *Recorder {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Recorder{sink: sink, batchSize: batchSize}
}

// Handle buffers the event if it is a pick. It satisfies the durable
// consumer callback of the NATS buses.
func (r *Recorder) Handle(event pubsub.Event) {
	rec, ok := PickFromEvent(event)
	if !ok {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, rec)
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if full {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.Flush(ctx)
	}
}

// Flush writes every buffered pick. Failed batches are dropped and logged.
func (r *Recorder) Flush(ctx context.Context) int {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	if err := r.sink.RecordPicks(ctx, batch); err != nil {
		logger.Error("Failed to record picks", "count", len(batch), "error", err)
		return 0
	}
	logger.Debug("Recorded picks", "count", len(batch))
	return len(batch)
}

// Run consumes events from ch, flushing on every interval tick and once more
// when ch closes or ctx ends
func (r *Recorder) Run(ctx context.Context, ch <-chan pubsub.Event, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.Flush(flushCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			r.Handle(event)
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// PickFromEvent extracts a pick record from a draft:human_pick or
// draft:bot_pick event. Payload numbers arrive as float64 after a trip
// through NATS.
func PickFromEvent(event pubsub.Event) (PickRecord, bool) {
	human := event.Type == "draft:human_pick"
	if !human && event.Type != "draft:bot_pick" {
		return PickRecord{}, false
	}
	p := event.Payload
	card, _ := p["cardId"].(string)
	if card == "" {
		return PickRecord{}, false
	}
	setCode, _ := p["setCode"].(string)
	draftID := event.DraftID
	if draftID == "" {
		draftID, _ = p["draftId"].(string)
	}
	at := event.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return PickRecord{
		DraftID:    draftID,
		SetCode:    setCode,
		Round:      asInt(p["pickRound"]),
		PickNumber: asInt(p["pickNumber"]),
		Seat:       asInt(p["playerIndex"]),
		CardID:     card,
		Human:      human,
		At:         at,
	}, true
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
