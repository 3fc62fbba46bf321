package bots

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Billy-Davies-2/flashdraft/internal/engine"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

func catalog(n int) models.Catalog {
	c := models.Catalog{SetCode: "tst"}
	rarities := []models.Rarity{models.RarityMythic, models.RarityRare, models.RarityUncommon, models.RarityCommon}
	for i := 0; i < n; i++ {
		r := rarities[min(i/10, 3)]
		c.Cards = append(c.Cards, models.Card{ID: fmt.Sprintf("c%03d", i), Name: "card", Rarity: r, SetCode: "tst"})
	}
	return c
}

func startedDraft(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New()
	e.LoadSet(catalog(300))
	if _, err := e.ApplyAction(models.NewCreateDraft(models.CreateDraftPayload{
		DraftID: "d1", Seed: "bots", SetCode: "tst", PlayerCount: 8,
	}, time.Time{})); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.ApplyAction(models.NewStartDraft("d1", time.Time{})); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e
}

func TestPickForBotsWaitsForHuman(t *testing.T) {
	e := startedDraft(t)
	p := NewAutoPicker(e)

	n, state, err := p.PickForBots("d1")
	if err != nil {
		t.Fatalf("PickForBots: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 bot picks, got %d", n)
	}
	if state.CurrentPick != 1 {
		t.Errorf("position moved without the human: pick %d", state.CurrentPick)
	}

	// a second call owes nothing
	n, _, err = p.PickForBots("d1")
	if err != nil || n != 0 {
		t.Errorf("second call: n=%d err=%v", n, err)
	}
}

func TestPickForBotsDrivesFullDraft(t *testing.T) {
	e := startedDraft(t)
	p := NewAutoPicker(e)

	for i := 0; i < models.RoundCount*models.PackSize; i++ {
		if _, _, err := p.PickForBots("d1"); err != nil {
			t.Fatalf("PickForBots: %v", err)
		}
		state, _ := e.GetDraftState("d1")
		if state.Status == models.StatusCompleted {
			t.Fatalf("completed early at iteration %d", i)
		}
		human := state.Packs[state.CurrentRound][state.HumanPlayerIndex]
		if _, err := e.ApplyAction(models.NewHumanPick("d1", state.HumanPlayerIndex, human.Cards[0].ID, time.Time{})); err != nil {
			t.Fatalf("human pick %d: %v", i, err)
		}
	}

	state, _ := e.GetDraftState("d1")
	if state.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", state.Status)
	}
	for seat := 0; seat < state.PlayerCount; seat++ {
		if got := len(state.PlayerDecks[seat]); got != models.RoundCount*models.PackSize {
			t.Errorf("seat %d has %d cards", seat, got)
		}
	}
}

func TestPickForBotsUnknownDraft(t *testing.T) {
	_, _, err := NewAutoPicker(engine.New()).PickForBots("missing")
	if !errors.Is(err, engine.ErrDraftNotFound) {
		t.Errorf("expected ErrDraftNotFound, got %v", err)
	}
}

func TestPickForBotsIgnoresInactiveDraft(t *testing.T) {
	e := engine.New()
	e.LoadSet(catalog(300))
	if _, err := e.ApplyAction(models.NewCreateDraft(models.CreateDraftPayload{
		DraftID: "d1", Seed: "s", SetCode: "tst", PlayerCount: 8,
	}, time.Time{})); err != nil {
		t.Fatal(err)
	}
	n, _, err := NewAutoPicker(e).PickForBots("d1")
	if err != nil || n != 0 {
		t.Errorf("created draft: n=%d err=%v", n, err)
	}
}
