// Package bots drives the non-human seats of a draft.
package bots

import (
	"fmt"
	"time"

	"github.com/Billy-Davies-2/flashdraft/internal/engine"
	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

// Applier is the part of the engine the picker needs
type Applier interface {
	ApplyAction(a models.Action) (*models.DraftState, error)
	GetDraftState(draftID string) (*models.DraftState, bool)
}

// AutoPicker submits bot picks until the human seat has to act
type AutoPicker struct {
	engine Applier
	now    func() time.Time
}

// NewAutoPicker creates a picker over the given engine
func NewAutoPicker(e Applier) *AutoPicker {
	return &AutoPicker{engine: e, now: func() time.Time { return time.Now().UTC() }}
}

// PickForBots takes the top card for every bot seat that has not picked at
// the current position. It keeps going while positions advance without the
// human, which happens when the human's pack is exhausted. It returns the
// number of picks made and the latest state.
func (p *AutoPicker) PickForBots(draftID string) (int, *models.DraftState, error) {
	state, ok := p.engine.GetDraftState(draftID)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", engine.ErrDraftNotFound, draftID)
	}

	total := 0
	for state.Status == models.StatusActive {
		picks := pendingBotPicks(state)
		if len(picks) == 0 {
			break
		}
		for _, pick := range picks {
			next, err := p.engine.ApplyAction(models.NewBotPick(draftID, pick.seat, pick.cardID, p.now()))
			if err != nil {
				return total, state, fmt.Errorf("bot pick for seat %d: %w", pick.seat, err)
			}
			total++
			state = next
		}
	}

	if total > 0 {
		logger.Debug("Bots picked", "draft_id", draftID, "picks", total,
			"round", state.CurrentRound, "pick", state.CurrentPick)
	}
	return total, state, nil
}

type botPick struct {
	seat   int
	cardID string
}

// pendingBotPicks lists the top-card picks owed at the current position.
// All of them are computed from one state so a quorum reached midway cannot
// make a later seat pick twice in one pass.
func pendingBotPicks(state *models.DraftState) []botPick {
	var out []botPick
	packs := state.Packs[state.CurrentRound]
	for seat := 0; seat < state.PlayerCount; seat++ {
		if seat == state.HumanPlayerIndex {
			continue
		}
		pack, ok := packs[seat]
		if !ok || len(pack.Cards) == 0 || engine.HasPicked(pack, state.CurrentPick) {
			continue
		}
		out = append(out, botPick{seat: seat, cardID: pack.Cards[0].ID})
	}
	return out
}
