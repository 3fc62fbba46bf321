package engine

import (
	"fmt"
	"time"

	"github.com/Billy-Davies-2/flashdraft/internal/models"
	"github.com/Billy-Davies-2/flashdraft/internal/packgen"
)

// transition applies one action (and whatever it synthesizes) to a state the
// caller already owns. In replay mode picks never synthesize: the logged
// secondary actions are applied as they were recorded. Outside replay,
// pass_packs, start_round and complete_draft are accepted only at the
// position where the engine would synthesize them itself.
type transition struct {
	catalogs map[string]models.Catalog
	now      func() time.Time
	replay   bool

	synthesized []models.Action
	completed   bool
	pickedAt    models.Position

	// synthesizing is set while advance applies its own follow-up actions.
	// Submitted follow-ups must land exactly where advance would put them.
	synthesizing bool
}

func (t *transition) run(state *models.DraftState, a models.Action) (*models.DraftState, error) {
	if a.Type == models.ActionCreateDraft {
		return t.create(a)
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, a.DraftID())
	}
	if state.Status == models.StatusCompleted {
		record(state, a)
		return state, nil
	}
	if err := t.apply(state, a); err != nil {
		return nil, err
	}
	return state, nil
}

// apply mutates state in place; callers hand it a clone
func (t *transition) apply(state *models.DraftState, a models.Action) error {
	if state.Status == models.StatusCompleted {
		record(state, a)
		return nil
	}
	switch p := a.Payload.(type) {
	case models.DraftPayload:
		if a.Type == models.ActionStartDraft {
			return t.start(state, a)
		}
		return t.complete(state, a)
	case models.PickPayload:
		return t.pick(state, a, p)
	case models.PassPacksPayload:
		return t.passPacks(state, a, p)
	case models.StartRoundPayload:
		return t.startRound(state, a, p)
	case models.AdvancePositionPayload:
		return t.advancePosition(state, a, p)
	}
	return fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
}

func (t *transition) create(a models.Action) (*models.DraftState, error) {
	p := a.Payload.(models.CreateDraftPayload)
	switch {
	case p.DraftID == "":
		return nil, fmt.Errorf("%w: draft id is required", ErrInvalidPayload)
	case p.SetCode == "":
		return nil, fmt.Errorf("%w: set code is required", ErrInvalidPayload)
	case p.PlayerCount < 1 || p.PlayerCount > models.MaxSeats:
		return nil, fmt.Errorf("%w: player count %d", ErrInvalidPayload, p.PlayerCount)
	case p.HumanPlayerIndex < 0 || p.HumanPlayerIndex >= p.PlayerCount:
		return nil, fmt.Errorf("%w: human seat %d outside %d seats", ErrInvalidPayload, p.HumanPlayerIndex, p.PlayerCount)
	}
	seed := p.Seed
	if seed == "" {
		seed = p.DraftID
	}

	state := &models.DraftState{
		DraftID:           p.DraftID,
		Seed:              seed,
		SetCode:           p.SetCode,
		Status:            models.StatusCreated,
		PlayerCount:       p.PlayerCount,
		HumanPlayerIndex:  p.HumanPlayerIndex,
		CurrentRound:      1,
		CurrentPick:       1,
		Packs:             make(map[int]map[int]models.Pack),
		PlayerDecks:       make(map[int][]string),
		PackPassDirection: models.DefaultPassDirections(),
		CreatedAt:         a.Timestamp,
	}
	record(state, a)
	return state, nil
}

func (t *transition) start(state *models.DraftState, a models.Action) error {
	if state.Status != models.StatusCreated {
		return fmt.Errorf("%w: cannot start a draft that is %s", ErrInvalidTransition, state.Status)
	}
	packs, err := t.generateRound(state, 1)
	if err != nil {
		return err
	}
	state.Packs[1] = packs
	state.Status = models.StatusActive
	record(state, a)

	// thin catalogs can open packs that are already exhausted
	if !t.replay {
		return t.autoAdvance(state)
	}
	return nil
}

func (t *transition) pick(state *models.DraftState, a models.Action, p models.PickPayload) error {
	if state.Status != models.StatusActive {
		return fmt.Errorf("%w: %s", ErrDraftNotActive, state.DraftID)
	}
	seat := p.PlayerIndex
	if seat < 0 || seat >= state.PlayerCount {
		return fmt.Errorf("%w: seat %d outside %d seats", ErrInvalidPick, seat, state.PlayerCount)
	}
	human := seat == state.HumanPlayerIndex
	if a.Type == models.ActionHumanPick && !human {
		return fmt.Errorf("%w: seat %d is not the human seat", ErrInvalidPick, seat)
	}
	if a.Type == models.ActionBotPick && human {
		return fmt.Errorf("%w: seat %d is the human seat", ErrInvalidPick, seat)
	}

	round := state.CurrentRound
	pack, ok := state.Packs[round][seat]
	if !ok {
		return fmt.Errorf("%w: seat %d has no pack in round %d", ErrInvalidPick, seat, round)
	}
	if HasPicked(pack, state.CurrentPick) {
		return fmt.Errorf("%w: seat %d already picked at round %d pick %d", ErrInvalidPick, seat, round, state.CurrentPick)
	}

	idx := -1
	for i, c := range pack.Cards {
		if c.ID == p.CardID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: card %s is not in seat %d's pack", ErrInvalidPick, p.CardID, seat)
	}

	remaining := make([]models.Card, 0, len(pack.Cards)-1)
	remaining = append(remaining, pack.Cards[:idx]...)
	remaining = append(remaining, pack.Cards[idx+1:]...)
	pack.Cards = remaining
	state.Packs[round][seat] = pack
	state.PlayerDecks[seat] = append(state.PlayerDecks[seat], p.CardID)
	t.pickedAt = state.Position()
	record(state, a)

	if t.replay {
		return nil
	}
	return t.autoAdvance(state)
}

func (t *transition) passPacks(state *models.DraftState, a models.Action, p models.PassPacksPayload) error {
	if state.Status != models.StatusActive {
		return fmt.Errorf("%w: %s", ErrDraftNotActive, state.DraftID)
	}
	if !t.replay && !t.synthesizing {
		if p.Round != state.CurrentRound || state.CurrentPick >= models.PackSize || !QuorumReached(state) {
			return fmt.Errorf("%w: packs pass only once every seat has picked at round %d pick %d",
				ErrInvalidTransition, state.CurrentRound, state.CurrentPick)
		}
	}
	dir := p.Direction
	if dir == "" {
		dir = state.PackPassDirection[p.Round]
	}
	if dir != models.PassLeft && dir != models.PassRight {
		return fmt.Errorf("%w: no pass direction for round %d", ErrInvalidPayload, p.Round)
	}
	current, ok := state.Packs[p.Round]
	if !ok {
		return fmt.Errorf("%w: round %d has no packs", ErrInvalidPayload, p.Round)
	}

	n := state.PlayerCount
	rotated := make(map[int]models.Pack, n)
	for seat := 0; seat < n; seat++ {
		from := (seat + 1) % n
		if dir == models.PassRight {
			from = (seat - 1 + n) % n
		}
		if pack, ok := current[from]; ok {
			rotated[seat] = pack.Clone()
		}
	}
	state.Packs[p.Round] = rotated
	record(state, a)
	return nil
}

func (t *transition) startRound(state *models.DraftState, a models.Action, p models.StartRoundPayload) error {
	if state.Status != models.StatusActive {
		return fmt.Errorf("%w: %s", ErrDraftNotActive, state.DraftID)
	}
	if p.Round < 1 || p.Round > models.RoundCount {
		return fmt.Errorf("%w: round %d", ErrInvalidPayload, p.Round)
	}
	if !t.replay && !t.synthesizing && !roundExhausted(state, p.Round-1) {
		return fmt.Errorf("%w: round %d opens only after round %d is exhausted",
			ErrInvalidTransition, p.Round, p.Round-1)
	}
	packs, err := t.generateRound(state, p.Round)
	if err != nil {
		return err
	}
	state.Packs[p.Round] = packs
	record(state, a)
	return nil
}

func (t *transition) advancePosition(state *models.DraftState, a models.Action, p models.AdvancePositionPayload) error {
	if p.Round < 1 || p.Round > models.RoundCount || p.Pick < 1 || p.Pick > models.PackSize {
		return fmt.Errorf("%w: position round %d pick %d", ErrInvalidPayload, p.Round, p.Pick)
	}
	state.CurrentRound = p.Round
	state.CurrentPick = p.Pick
	record(state, a)
	return nil
}

func (t *transition) complete(state *models.DraftState, a models.Action) error {
	if state.Status != models.StatusActive {
		return fmt.Errorf("%w: %s", ErrDraftNotActive, state.DraftID)
	}
	if !t.replay && !t.synthesizing && !roundExhausted(state, models.RoundCount) {
		return fmt.Errorf("%w: draft completes only after round %d is exhausted",
			ErrInvalidTransition, models.RoundCount)
	}
	state.Status = models.StatusCompleted
	t.completed = true
	record(state, a)
	return nil
}

func (t *transition) generateRound(state *models.DraftState, round int) (map[int]models.Pack, error) {
	catalog, ok := t.catalogs[state.SetCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSetNotFound, state.SetCode)
	}
	roundSeed := fmt.Sprintf("%s_round_%d", state.Seed, round)
	composer := packgen.NewComposer(catalog, roundSeed)

	packs := make(map[int]models.Pack, state.PlayerCount)
	for seat, pack := range composer.GeneratePacks(state.PlayerCount, roundSeed) {
		packs[seat] = pack
	}
	return packs, nil
}

// autoAdvance moves the table forward for as long as every seat has picked
// at the current position
func (t *transition) autoAdvance(state *models.DraftState) error {
	for state.Status == models.StatusActive && QuorumReached(state) {
		if err := t.advance(state); err != nil {
			return err
		}
	}
	return nil
}

// advance synthesizes the secondary action for the next position, then the
// advance_position marker. The marker is always logged last.
func (t *transition) advance(state *models.DraftState) error {
	id := state.DraftID
	next := state.Position()

	var secondary models.Action
	switch {
	case next.Pick < models.PackSize:
		next.Pick++
		secondary = models.NewPassPacks(id, next.Round, state.PackPassDirection[next.Round], t.now())
	case next.Round < models.RoundCount:
		next.Round++
		next.Pick = 1
		secondary = models.NewStartRound(id, next.Round, t.now())
	default:
		secondary = models.NewCompleteDraft(id, t.now())
	}

	t.synthesizing = true
	defer func() { t.synthesizing = false }()
	for _, act := range []models.Action{secondary, models.NewAdvancePosition(id, next, t.now())} {
		if err := t.apply(state, act); err != nil {
			return err
		}
		t.synthesized = append(t.synthesized, act)
	}
	return nil
}

// roundExhausted reports whether the table sits at the last pick of round
// with every seat done
func roundExhausted(state *models.DraftState, round int) bool {
	return state.CurrentRound == round && state.CurrentPick == models.PackSize && QuorumReached(state)
}

// QuorumReached reports whether every seat's pack in the current round holds
// exactly the cards expected after one pick at the current position
func QuorumReached(state *models.DraftState) bool {
	packs := state.Packs[state.CurrentRound]
	if len(packs) < state.PlayerCount {
		return false
	}
	for seat := 0; seat < state.PlayerCount; seat++ {
		pack, ok := packs[seat]
		if !ok {
			return false
		}
		if len(pack.Cards) != max(0, pack.Opened-state.CurrentPick) {
			return false
		}
	}
	return true
}

// HasPicked reports whether the holder of pack has already taken a card at
// the given pick
func HasPicked(pack models.Pack, pick int) bool {
	return len(pack.Cards) != pack.Opened-(pick-1)
}

func record(state *models.DraftState, a models.Action) {
	state.ActionHistory = append(state.ActionHistory, a)
	state.UpdatedAt = a.Timestamp
}
