package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownActionType is returned for actions whose type or payload is not recognized
var ErrUnknownActionType = errors.New("unknown action type")

// ActionType identifies the kind of an action
type ActionType string

const (
	ActionCreateDraft     ActionType = "create_draft"
	ActionStartDraft      ActionType = "start_draft"
	ActionHumanPick       ActionType = "human_pick"
	ActionBotPick         ActionType = "bot_pick"
	ActionPassPacks       ActionType = "pass_packs"
	ActionStartRound      ActionType = "start_round"
	ActionAdvancePosition ActionType = "advance_position"
	ActionCompleteDraft   ActionType = "complete_draft"
)

// IsValid reports whether t is one of the known action kinds
func (t ActionType) IsValid() bool {
	switch t {
	case ActionCreateDraft, ActionStartDraft, ActionHumanPick, ActionBotPick,
		ActionPassPacks, ActionStartRound, ActionAdvancePosition, ActionCompleteDraft:
		return true
	}
	return false
}

// Submittable reports whether callers may submit t directly. Position
// advances are only ever synthesized by the engine.
func (t ActionType) Submittable() bool {
	return t.IsValid() && t != ActionAdvancePosition
}

// ActionPayload is implemented by the payload struct of every action kind
type ActionPayload interface {
	TargetDraft() string
	isActionPayload()
}

// CreateDraftPayload allocates a new draft
type CreateDraftPayload struct {
	DraftID          string `json:"draftId"`
	Seed             string `json:"seed"`
	SetCode          string `json:"setCode"`
	PlayerCount      int    `json:"playerCount"`
	HumanPlayerIndex int    `json:"humanPlayerIndex"`
}

// DraftPayload names the draft for start and complete actions
type DraftPayload struct {
	DraftID string `json:"draftId"`
}

// PickPayload is one seat taking one card
type PickPayload struct {
	DraftID     string `json:"draftId"`
	PlayerIndex int    `json:"playerIndex"`
	CardID      string `json:"cardId"`
}

// PassPacksPayload rotates the packs of a round
type PassPacksPayload struct {
	DraftID   string        `json:"draftId"`
	Round     int           `json:"round"`
	Direction PassDirection `json:"direction"`
}

// StartRoundPayload opens fresh packs for a round
type StartRoundPayload struct {
	DraftID string `json:"draftId"`
	Round   int    `json:"round"`
}

// AdvancePositionPayload records the position a draft advanced to
type AdvancePositionPayload struct {
	DraftID string `json:"draftId"`
	Round   int    `json:"round"`
	Pick    int    `json:"pick"`
}

func (p CreateDraftPayload) TargetDraft() string     { return p.DraftID }
func (p DraftPayload) TargetDraft() string           { return p.DraftID }
func (p PickPayload) TargetDraft() string            { return p.DraftID }
func (p PassPacksPayload) TargetDraft() string       { return p.DraftID }
func (p StartRoundPayload) TargetDraft() string      { return p.DraftID }
func (p AdvancePositionPayload) TargetDraft() string { return p.DraftID }

func (CreateDraftPayload) isActionPayload()     {}
func (DraftPayload) isActionPayload()           {}
func (PickPayload) isActionPayload()            {}
func (PassPacksPayload) isActionPayload()       {}
func (StartRoundPayload) isActionPayload()      {}
func (AdvancePositionPayload) isActionPayload() {}

// Action is an immutable record of one state transition
type Action struct {
	Type      ActionType    `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   ActionPayload `json:"payload"`
}

// DraftID returns the draft the action targets, or "" when the payload is absent
func (a Action) DraftID() string {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.TargetDraft()
}

// Validate checks that the payload shape matches the action type
func (a Action) Validate() error {
	if a.Payload == nil {
		return fmt.Errorf("%w: %q has no payload", ErrUnknownActionType, a.Type)
	}
	var ok bool
	switch a.Type {
	case ActionCreateDraft:
		_, ok = a.Payload.(CreateDraftPayload)
	case ActionStartDraft, ActionCompleteDraft:
		_, ok = a.Payload.(DraftPayload)
	case ActionHumanPick, ActionBotPick:
		_, ok = a.Payload.(PickPayload)
	case ActionPassPacks:
		_, ok = a.Payload.(PassPacksPayload)
	case ActionStartRound:
		_, ok = a.Payload.(StartRoundPayload)
	case ActionAdvancePosition:
		_, ok = a.Payload.(AdvancePositionPayload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}
	if !ok {
		return fmt.Errorf("%w: %q carries a %T payload", ErrUnknownActionType, a.Type, a.Payload)
	}
	return nil
}

// UnmarshalJSON decodes the payload into the struct matching the action type
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      ActionType      `json:"type"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Type = raw.Type
	a.Timestamp = raw.Timestamp
	a.Payload = nil

	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		if !raw.Type.IsValid() {
			return fmt.Errorf("%w: %q", ErrUnknownActionType, raw.Type)
		}
		return nil
	}

	var err error
	switch raw.Type {
	case ActionCreateDraft:
		var p CreateDraftPayload
		err = json.Unmarshal(raw.Payload, &p)
		a.Payload = p
	case ActionStartDraft, ActionCompleteDraft:
		var p DraftPayload
		err = json.Unmarshal(raw.Payload, &p)
		a.Payload = p
	case ActionHumanPick, ActionBotPick:
		var p PickPayload
		err = json.Unmarshal(raw.Payload, &p)
		a.Payload = p
	case ActionPassPacks:
		var p PassPacksPayload
		err = json.Unmarshal(raw.Payload, &p)
		a.Payload = p
	case ActionStartRound:
		var p StartRoundPayload
		err = json.Unmarshal(raw.Payload, &p)
		a.Payload = p
	case ActionAdvancePosition:
		var p AdvancePositionPayload
		err = json.Unmarshal(raw.Payload, &p)
		a.Payload = p
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActionType, raw.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", raw.Type, err)
	}
	return nil
}

// NewCreateDraft builds a create action
func NewCreateDraft(p CreateDraftPayload, ts time.Time) Action {
	return Action{Type: ActionCreateDraft, Timestamp: ts, Payload: p}
}

// NewStartDraft builds a start action
func NewStartDraft(draftID string, ts time.Time) Action {
	return Action{Type: ActionStartDraft, Timestamp: ts, Payload: DraftPayload{DraftID: draftID}}
}

// NewHumanPick builds a pick by the human seat
func NewHumanPick(draftID string, seat int, cardID string, ts time.Time) Action {
	return Action{Type: ActionHumanPick, Timestamp: ts, Payload: PickPayload{DraftID: draftID, PlayerIndex: seat, CardID: cardID}}
}

// NewBotPick builds a pick by an automated seat
func NewBotPick(draftID string, seat int, cardID string, ts time.Time) Action {
	return Action{Type: ActionBotPick, Timestamp: ts, Payload: PickPayload{DraftID: draftID, PlayerIndex: seat, CardID: cardID}}
}

// NewPassPacks builds a pack rotation
func NewPassPacks(draftID string, round int, dir PassDirection, ts time.Time) Action {
	return Action{Type: ActionPassPacks, Timestamp: ts, Payload: PassPacksPayload{DraftID: draftID, Round: round, Direction: dir}}
}

// NewStartRound builds a round opening
func NewStartRound(draftID string, round int, ts time.Time) Action {
	return Action{Type: ActionStartRound, Timestamp: ts, Payload: StartRoundPayload{DraftID: draftID, Round: round}}
}

// NewAdvancePosition builds a position marker
func NewAdvancePosition(draftID string, pos Position, ts time.Time) Action {
	return Action{Type: ActionAdvancePosition, Timestamp: ts, Payload: AdvancePositionPayload{DraftID: draftID, Round: pos.Round, Pick: pos.Pick}}
}

// NewCompleteDraft builds a completion
func NewCompleteDraft(draftID string, ts time.Time) Action {
	return Action{Type: ActionCompleteDraft, Timestamp: ts, Payload: DraftPayload{DraftID: draftID}}
}
