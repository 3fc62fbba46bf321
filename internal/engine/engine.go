// Package engine is the draft state machine. It owns the authoritative copy
// of every draft, applies one action at a time, advances the table once
// every seat has picked, and rebuilds historical states from the action log.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
	"github.com/Billy-Davies-2/flashdraft/internal/pubsub"
)

// EventPrefix starts the type of every event the engine publishes
const EventPrefix = "draft:"

// Saver persists draft states off the caller's path
type Saver interface {
	SaveAsync(state *models.DraftState)
}

// Publisher receives an event for every applied action
type Publisher interface {
	Publish(pubsub.Event)
}

// Engine holds the drafts and catalogs of one coordinator
type Engine struct {
	// mu serializes ApplyAction; the draft table has a single writer
	mu       sync.RWMutex
	drafts   map[string]*models.DraftState
	catalogs map[string]models.Catalog

	saver     Saver
	publisher Publisher
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithSaver persists drafts after create, start, human picks and completion
func WithSaver(s Saver) Option {
	return func(e *Engine) { e.saver = s }
}

// WithPublisher announces applied actions
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock overrides the timestamp source for synthesized actions
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how draft ids are allocated
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New creates an engine with empty tables
func New(opts ...Option) *Engine {
	e := &Engine{
		drafts:   make(map[string]*models.DraftState),
		catalogs: make(map[string]models.Catalog),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadSet registers the catalog for a set code, replacing any earlier one
func (e *Engine) LoadSet(catalog models.Catalog) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalogs[catalog.SetCode] = catalog
	logger.Info("Loaded set catalog", "set_code", catalog.SetCode, "cards", len(catalog.Cards))
}

// HasSet reports whether a catalog is loaded for code
func (e *Engine) HasSet(code string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.catalogs[code]
	return ok
}

// ApplyAction applies a submitted action to the draft it names and makes the
// result authoritative. A failed action leaves the stored draft untouched.
func (e *Engine) ApplyAction(a models.Action) (*models.DraftState, error) {
	if !a.Type.Submittable() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = e.now()
	}

	e.mu.Lock()
	var prev *models.DraftState
	if a.Type == models.ActionCreateDraft {
		a = e.prepareCreate(a)
		if _, exists := e.drafts[a.DraftID()]; exists {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDraftExists, a.DraftID())
		}
	} else {
		prev = e.drafts[a.DraftID()]
		if prev == nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, a.DraftID())
		}
	}

	t := e.newTransition(false)
	next, err := t.run(prev.Clone(), a)
	if err != nil {
		e.mu.Unlock()
		logger.Warn("Rejected action", "type", a.Type, "draft_id", a.DraftID(), "error", err)
		return nil, err
	}
	e.drafts[next.DraftID] = next
	out := next.Clone()
	e.mu.Unlock()

	logger.Debug("Applied action", "type", a.Type, "draft_id", out.DraftID,
		"round", out.CurrentRound, "pick", out.CurrentPick, "status", out.Status)

	e.publish(a, t, out)
	if e.saver != nil && (persistsAfter(a.Type) || t.completed) {
		e.saver.SaveAsync(out.Clone())
	}
	return out, nil
}

// ApplyActionToState applies a to a copy of state without touching the
// engine's tables. state may be nil for a create action.
func (e *Engine) ApplyActionToState(state *models.DraftState, a models.Action) (*models.DraftState, error) {
	if !a.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.Type == models.ActionCreateDraft {
		if a.Timestamp.IsZero() {
			a.Timestamp = e.now()
		}
		a = e.prepareCreate(a)
	} else if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, a.DraftID())
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.newTransition(false).run(state.Clone(), a)
}

// GetDraftState returns a copy of the current state of a draft
func (e *Engine) GetDraftState(draftID string) (*models.DraftState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.drafts[draftID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// GetAllDraftIDs lists the drafts held by the engine in sorted order
func (e *Engine) GetAllDraftIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.drafts))
	for id := range e.drafts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Remove drops a draft from the table
func (e *Engine) Remove(draftID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.drafts[draftID]; !ok {
		return false
	}
	delete(e.drafts, draftID)
	return true
}

func (e *Engine) prepareCreate(a models.Action) models.Action {
	p := a.Payload.(models.CreateDraftPayload)
	if p.DraftID == "" {
		p.DraftID = e.newID()
	}
	if p.Seed == "" {
		p.Seed = p.DraftID
	}
	if p.PlayerCount == 0 {
		p.PlayerCount = models.DefaultSeats
	}
	a.Payload = p
	return a
}

func (e *Engine) newTransition(replay bool) *transition {
	return &transition{catalogs: e.catalogs, now: e.now, replay: replay}
}

// persistsAfter lists the action kinds that trigger a save. Bot picks and
// synthesized actions ride along with the next qualifying save.
func persistsAfter(t models.ActionType) bool {
	switch t {
	case models.ActionCreateDraft, models.ActionStartDraft, models.ActionHumanPick, models.ActionCompleteDraft:
		return true
	}
	return false
}

func (e *Engine) publish(a models.Action, t *transition, state *models.DraftState) {
	if e.publisher == nil {
		return
	}
	for _, act := range append([]models.Action{a}, t.synthesized...) {
		payload := map[string]interface{}{
			"draftId": state.DraftID,
			"setCode": state.SetCode,
			"round":   state.CurrentRound,
			"pick":    state.CurrentPick,
			"status":  string(state.Status),
		}
		if p, ok := act.Payload.(models.PickPayload); ok {
			payload["playerIndex"] = p.PlayerIndex
			payload["cardId"] = p.CardID
			payload["pickRound"] = t.pickedAt.Round
			payload["pickNumber"] = t.pickedAt.Pick
		}
		e.publisher.Publish(pubsub.NewEvent(EventPrefix+string(act.Type), state.DraftID, payload))
	}
}
