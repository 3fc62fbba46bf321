// Package packgen composes booster packs from a set catalog.
//
// Generation is a pure function of (catalog, seed): the same inputs produce
// identical packs in identical order.
package packgen

import (
	"fmt"

	"github.com/Billy-Davies-2/flashdraft/internal/models"
	"github.com/Billy-Davies-2/flashdraft/internal/seededrand"
)

// MythicChance is the probability that the rare slot holds a mythic
const MythicChance = 1.0 / 8

// Composer builds packs for one catalog
type Composer struct {
	setCode string
	pools   map[models.Rarity][]models.Card
	rng     *seededrand.Source
}

// NewComposer creates a composer over catalog seeded with seed
func NewComposer(catalog models.Catalog, seed string) *Composer {
	pools := make(map[models.Rarity][]models.Card)
	for _, card := range catalog.Cards {
		if card.BackFace {
			continue
		}
		switch card.Rarity {
		case models.RarityCommon, models.RarityUncommon, models.RarityRare, models.RarityMythic:
			pools[card.Rarity] = append(pools[card.Rarity], card)
		}
	}
	return &Composer{
		setCode: catalog.SetCode,
		pools:   pools,
		rng:     seededrand.New(seed + "_" + catalog.SetCode),
	}
}

// GeneratePack composes one pack: 3-4 uncommons, commons for every slot but
// one, and one rare or mythic. When both rare pools are empty the slot is
// left out and the pack comes back one card short.
func (c *Composer) GeneratePack(packID string) models.Pack {
	uncommonCount := c.rng.NextInt(3, 5)
	commonCount := models.PackSize - uncommonCount - 1

	cards := make([]models.Card, 0, models.PackSize)
	cards = append(cards, seededrand.Sample(c.rng, c.pools[models.RarityCommon], commonCount)...)
	cards = append(cards, seededrand.Sample(c.rng, c.pools[models.RarityUncommon], uncommonCount)...)
	if rare, ok := c.rareSlot(); ok {
		cards = append(cards, rare)
	}

	return models.Pack{
		ID:      packID,
		SetCode: c.setCode,
		Cards:   seededrand.Shuffle(c.rng, cards),
		Opened:  len(cards),
	}
}

func (c *Composer) rareSlot() (models.Card, bool) {
	rares := c.pools[models.RarityRare]
	mythics := c.pools[models.RarityMythic]

	pool := rares
	if c.rng.Next() < MythicChance {
		pool = mythics
	}
	if len(pool) == 0 {
		if len(rares) > 0 {
			pool = rares
		} else {
			pool = mythics
		}
	}
	if len(pool) == 0 {
		return models.Card{}, false
	}
	return seededrand.Choice(c.rng, pool), true
}

// GeneratePacks builds count packs. The source is reset to
// baseSeed_pack_<i> before pack i, so each pack is reproducible on its own.
func (c *Composer) GeneratePacks(count int, baseSeed string) []models.Pack {
	packs := make([]models.Pack, 0, count)
	for i := 0; i < count; i++ {
		sub := fmt.Sprintf("%s_pack_%d", baseSeed, i)
		c.rng.Reset(sub)
		packs = append(packs, c.GeneratePack(sub))
	}
	return packs
}

// PackStats returns a rarity histogram for a pack
func PackStats(pack models.Pack) map[models.Rarity]int {
	stats := make(map[models.Rarity]int)
	for _, card := range pack.Cards {
		stats[card.Rarity]++
	}
	return stats
}

// ValidatePack reports whether a pack has the standard booster shape
func ValidatePack(pack models.Pack) bool {
	return Health(pack).Valid
}

// PackHealth explains a pack's shape
type PackHealth struct {
	Valid    bool                  `json:"valid"`
	Size     int                   `json:"size"`
	Stats    map[models.Rarity]int `json:"stats"`
	Problems []string              `json:"problems,omitempty"`
}

// Health checks a pack and names every way it deviates from a booster
func Health(pack models.Pack) PackHealth {
	stats := PackStats(pack)
	h := PackHealth{Size: len(pack.Cards), Stats: stats}

	if h.Size != models.PackSize {
		h.Problems = append(h.Problems, fmt.Sprintf("pack has %d cards, want %d", h.Size, models.PackSize))
	}
	if n := stats[models.RarityCommon]; n < 10 || n > 11 {
		h.Problems = append(h.Problems, fmt.Sprintf("pack has %d commons, want 10-11", n))
	}
	if n := stats[models.RarityUncommon]; n < 3 || n > 4 {
		h.Problems = append(h.Problems, fmt.Sprintf("pack has %d uncommons, want 3-4", n))
	}
	if n := stats[models.RarityRare] + stats[models.RarityMythic]; n != 1 {
		h.Problems = append(h.Problems, fmt.Sprintf("pack has %d rares/mythics, want 1", n))
	}
	h.Valid = len(h.Problems) == 0
	return h
}
