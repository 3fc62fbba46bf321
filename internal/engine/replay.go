package engine

import (
	"fmt"
	"reflect"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

// ReplayToPosition rebuilds a draft from its create action and returns the
// state at the first point it is active at or beyond (round, pick). The
// draft table is never written.
func (e *Engine) ReplayToPosition(draftID string, round, pick int) (*models.DraftState, error) {
	e.mu.RLock()
	current, ok := e.drafts[draftID]
	if !ok {
		e.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	history := make([]models.Action, len(current.ActionHistory))
	copy(history, current.ActionHistory)
	e.mu.RUnlock()

	target := models.Position{Round: round, Pick: pick}
	return e.rebuild(history, &target)
}

// rebuild re-applies history in replay mode. A nil target replays everything.
func (e *Engine) rebuild(history []models.Action, target *models.Position) (*models.DraftState, error) {
	if len(history) == 0 || history[0].Type != models.ActionCreateDraft {
		return nil, fmt.Errorf("%w: history does not begin with %s", ErrInvalidPayload, models.ActionCreateDraft)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var state *models.DraftState
	for i, a := range history {
		next, err := e.newTransition(true).run(state, a)
		if err != nil {
			return nil, fmt.Errorf("replay action %d (%s): %w", i, a.Type, err)
		}
		state = next
		if target != nil && state.Status != models.StatusCreated && state.Position().AtOrAfter(*target) {
			break
		}
	}
	return state, nil
}

// Restore installs a state loaded from storage. The state is rebuilt from
// its own history and the rebuilt copy is what the engine keeps.
func (e *Engine) Restore(state *models.DraftState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidPayload)
	}
	rebuilt, err := e.rebuild(state.ActionHistory, nil)
	if err != nil {
		return fmt.Errorf("restore %s: %w", state.DraftID, err)
	}
	if rebuilt.DraftID != state.DraftID {
		return fmt.Errorf("%w: history belongs to draft %s, not %s", ErrInvalidPayload, rebuilt.DraftID, state.DraftID)
	}
	if !reflect.DeepEqual(rebuilt.PlayerDecks, state.PlayerDecks) || rebuilt.Position() != state.Position() || rebuilt.Status != state.Status {
		logger.Warn("Stored draft differs from its history, keeping the rebuilt state",
			"draft_id", state.DraftID, "stored_status", state.Status, "rebuilt_status", rebuilt.Status)
	}

	e.mu.Lock()
	e.drafts[rebuilt.DraftID] = rebuilt
	e.mu.Unlock()
	logger.Info("Restored draft", "draft_id", rebuilt.DraftID, "actions", len(rebuilt.ActionHistory), "status", rebuilt.Status)
	return nil
}
