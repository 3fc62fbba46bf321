package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestActionJSONDecodesPayloadByType(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	actions := []Action{
		NewCreateDraft(CreateDraftPayload{DraftID: "d", Seed: "s", SetCode: "neo", PlayerCount: 8}, ts),
		NewStartDraft("d", ts),
		NewHumanPick("d", 0, "card-1", ts),
		NewBotPick("d", 3, "card-2", ts),
		NewPassPacks("d", 2, PassRight, ts),
		NewStartRound("d", 3, ts),
		NewAdvancePosition("d", Position{Round: 2, Pick: 7}, ts),
		NewCompleteDraft("d", ts),
	}
	for _, a := range actions {
		data, err := json.Marshal(a)
		if err != nil {
			t.Fatalf("marshal %s: %v", a.Type, err)
		}
		var got Action
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", a.Type, err)
		}
		if !reflect.DeepEqual(got, a) {
			t.Errorf("%s decoded as %+v", a.Type, got)
		}
		if err := got.Validate(); err != nil {
			t.Errorf("%s: %v", a.Type, err)
		}
	}
}

func TestActionJSONRejectsUnknownType(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"type":"trade_cards","payload":{"draftId":"d"}}`), &a)
	if !errors.Is(err, ErrUnknownActionType) {
		t.Fatalf("error = %v, want ErrUnknownActionType", err)
	}
}

func TestActionValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"ok", NewStartDraft("d", time.Time{}), false},
		{"no payload", Action{Type: ActionStartDraft}, true},
		{"wrong payload", Action{Type: ActionBotPick, Payload: DraftPayload{DraftID: "d"}}, true},
		{"unknown type", Action{Type: "noop", Payload: DraftPayload{DraftID: "d"}}, true},
	}
	for _, tc := range tests {
		err := tc.action.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrUnknownActionType) {
			t.Errorf("%s: error %v does not wrap ErrUnknownActionType", tc.name, err)
		}
	}
}

func TestSubmittable(t *testing.T) {
	if ActionAdvancePosition.Submittable() {
		t.Error("advance_position must not be submittable")
	}
	if !ActionHumanPick.Submittable() || !ActionPassPacks.Submittable() {
		t.Error("pick and pass should be submittable")
	}
	if ActionType("bogus").IsValid() {
		t.Error("bogus type reported valid")
	}
}

func TestPositionAtOrAfter(t *testing.T) {
	tests := []struct {
		p, target Position
		want      bool
	}{
		{Position{1, 1}, Position{1, 1}, true},
		{Position{1, 2}, Position{1, 3}, false},
		{Position{2, 1}, Position{1, 15}, true},
		{Position{1, 15}, Position{2, 1}, false},
	}
	for _, tc := range tests {
		if got := tc.p.AtOrAfter(tc.target); got != tc.want {
			t.Errorf("%v.AtOrAfter(%v) = %v, want %v", tc.p, tc.target, got, tc.want)
		}
	}
}

func TestDraftStateCloneIsDeep(t *testing.T) {
	s := &DraftState{
		DraftID:           "d",
		Packs:             map[int]map[int]Pack{1: {0: {ID: "p", Cards: []Card{{ID: "a"}, {ID: "b"}}}}},
		PlayerDecks:       map[int][]string{0: {"x"}},
		PackPassDirection: DefaultPassDirections(),
	}
	c := s.Clone()
	c.Packs[1][0].Cards[0].ID = "changed"
	c.PlayerDecks[0][0] = "changed"
	c.PackPassDirection[1] = PassRight
	if s.Packs[1][0].Cards[0].ID != "a" || s.PlayerDecks[0][0] != "x" || s.PackPassDirection[1] != PassLeft {
		t.Fatal("clone shares memory with the original")
	}
}
