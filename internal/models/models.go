package models

import "time"

// Rarity represents a card's rarity tier
type Rarity string

const (
	RarityCommon   Rarity = "common"
	RarityUncommon Rarity = "uncommon"
	RarityRare     Rarity = "rare"
	RarityMythic   Rarity = "mythic"
)

// Card represents a single card from a set catalog
type Card struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Rarity    Rarity   `json:"rarity"`
	SetCode   string   `json:"setCode"`
	ManaCost  string   `json:"manaCost,omitempty"`
	TypeLine  string   `json:"typeLine,omitempty"`
	Colors    []string `json:"colors,omitempty"`
	ImageURL  string   `json:"imageUrl,omitempty"`
	FaceNames []string `json:"faceNames,omitempty"`
	// BackFace marks the secondary face of a multi-part card. Back faces are
	// never opened on their own.
	BackFace bool `json:"backFace,omitempty"`
}

// Catalog is the full card list for one set
type Catalog struct {
	SetCode string `json:"setCode"`
	Name    string `json:"name,omitempty"`
	Cards   []Card `json:"cards"`
}

// Pack represents a booster pack. Cards[0] is the top of the pack.
type Pack struct {
	ID      string `json:"id"`
	SetCode string `json:"setCode"`
	Cards   []Card `json:"cards"`
	// Opened is the number of cards the pack held when it was generated
	Opened int `json:"opened"`
}

// Clone returns a pack with its own card slice
func (p Pack) Clone() Pack {
	cards := make([]Card, len(p.Cards))
	copy(cards, p.Cards)
	p.Cards = cards
	return p
}

// CardIDs returns the pack's card ids in pack order
func (p Pack) CardIDs() []string {
	ids := make([]string, len(p.Cards))
	for i, c := range p.Cards {
		ids[i] = c.ID
	}
	return ids
}

// PassDirection is the direction packs travel after a pick
type PassDirection string

const (
	PassLeft  PassDirection = "left"
	PassRight PassDirection = "right"
)

// DraftStatus is the lifecycle stage of a draft
type DraftStatus string

const (
	StatusCreated   DraftStatus = "created"
	StatusActive    DraftStatus = "active"
	StatusCompleted DraftStatus = "completed"
)

// Draft shape constants
const (
	PackSize        = 15
	RoundCount      = 3
	DefaultSeats    = 8
	MaxSeats        = 64
	DefaultHumanIdx = 0
)

// DefaultPassDirections is the booster-draft convention: left, right, left
func DefaultPassDirections() map[int]PassDirection {
	return map[int]PassDirection{1: PassLeft, 2: PassRight, 3: PassLeft}
}

// Position is the draft's logical clock
type Position struct {
	Round int `json:"round"`
	Pick  int `json:"pick"`
}

// AtOrAfter reports whether p has reached target, comparing round then pick
func (p Position) AtOrAfter(target Position) bool {
	if p.Round != target.Round {
		return p.Round > target.Round
	}
	return p.Pick >= target.Pick
}

// DraftState represents the complete state of one draft
type DraftState struct {
	DraftID           string                `json:"draftId"`
	Seed              string                `json:"seed"`
	SetCode           string                `json:"setCode"`
	Status            DraftStatus           `json:"status"`
	PlayerCount       int                   `json:"playerCount"`
	HumanPlayerIndex  int                   `json:"humanPlayerIndex"`
	CurrentRound      int                   `json:"currentRound"`
	CurrentPick       int                   `json:"currentPick"`
	Packs             map[int]map[int]Pack  `json:"packs"`
	PlayerDecks       map[int][]string      `json:"playerDecks"`
	ActionHistory     []Action              `json:"actionHistory"`
	PackPassDirection map[int]PassDirection `json:"packPassDirection"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

// Position returns the current (round, pick)
func (s *DraftState) Position() Position {
	return Position{Round: s.CurrentRound, Pick: s.CurrentPick}
}

// Clone returns a deep copy. Actions are immutable values and are shared.
func (s *DraftState) Clone() *DraftState {
	if s == nil {
		return nil
	}
	out := *s

	out.Packs = make(map[int]map[int]Pack, len(s.Packs))
	for round, seats := range s.Packs {
		copied := make(map[int]Pack, len(seats))
		for seat, pack := range seats {
			copied[seat] = pack.Clone()
		}
		out.Packs[round] = copied
	}

	out.PlayerDecks = make(map[int][]string, len(s.PlayerDecks))
	for seat, deck := range s.PlayerDecks {
		d := make([]string, len(deck))
		copy(d, deck)
		out.PlayerDecks[seat] = d
	}

	out.ActionHistory = make([]Action, len(s.ActionHistory))
	copy(out.ActionHistory, s.ActionHistory)

	out.PackPassDirection = make(map[int]PassDirection, len(s.PackPassDirection))
	for round, dir := range s.PackPassDirection {
		out.PackPassDirection[round] = dir
	}
	return &out
}

// CardsInRound counts the cards still in the packs of a round
func (s *DraftState) CardsInRound(round int) int {
	total := 0
	for _, pack := range s.Packs[round] {
		total += len(pack.Cards)
	}
	return total
}

// Summary returns the listing view of a draft
func (s *DraftState) Summary() DraftSummary {
	return DraftSummary{
		DraftID:      s.DraftID,
		SetCode:      s.SetCode,
		Status:       s.Status,
		PlayerCount:  s.PlayerCount,
		CurrentRound: s.CurrentRound,
		CurrentPick:  s.CurrentPick,
		ActionCount:  len(s.ActionHistory),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// DraftSummary is the listing view of a stored draft
type DraftSummary struct {
	DraftID      string      `json:"draftId"`
	SetCode      string      `json:"setCode"`
	Status       DraftStatus `json:"status"`
	PlayerCount  int         `json:"playerCount"`
	CurrentRound int         `json:"currentRound"`
	CurrentPick  int         `json:"currentPick"`
	ActionCount  int         `json:"actionCount"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}
