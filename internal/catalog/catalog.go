// Package catalog loads set card lists from Scryfall set dumps.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

// FileSuffix names the set dumps LoadDir picks up
const FileSuffix = "_cards.json"

// ErrNoSetCode is returned for a dump without a usable set code
var ErrNoSetCode = errors.New("catalog has no set code")

type scryfallDump struct {
	SetInfo struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"set_info"`
	Cards []scryfallCard `json:"cards"`
}

type scryfallImages struct {
	Normal string `json:"normal"`
}

type scryfallFace struct {
	Name      string          `json:"name"`
	ManaCost  string          `json:"mana_cost"`
	TypeLine  string          `json:"type_line"`
	Colors    []string        `json:"colors"`
	ImageURIs *scryfallImages `json:"image_uris"`
}

type scryfallPart struct {
	ID        string `json:"id"`
	Component string `json:"component"`
}

type scryfallCard struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Rarity          string          `json:"rarity"`
	Set             string          `json:"set"`
	CollectorNumber string          `json:"collector_number"`
	ManaCost        string          `json:"mana_cost"`
	TypeLine        string          `json:"type_line"`
	Colors          []string        `json:"colors"`
	ImageURIs       *scryfallImages `json:"image_uris"`
	CardFaces       []scryfallFace  `json:"card_faces"`
	AllParts        []scryfallPart  `json:"all_parts"`
}

// Parse decodes a Scryfall set dump
func Parse(data []byte) (models.Catalog, error) {
	var dump scryfallDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return models.Catalog{}, fmt.Errorf("decode set dump: %w", err)
	}
	code := strings.ToLower(strings.TrimSpace(dump.SetInfo.Code))
	if code == "" && len(dump.Cards) > 0 {
		code = strings.ToLower(dump.Cards[0].Set)
	}
	if code == "" {
		return models.Catalog{}, ErrNoSetCode
	}

	cat := models.Catalog{SetCode: code, Name: dump.SetInfo.Name, Cards: make([]models.Card, 0, len(dump.Cards))}
	for _, sc := range dump.Cards {
		if sc.ID == "" {
			continue
		}
		cat.Cards = append(cat.Cards, convert(code, sc))
	}
	return cat, nil
}

func convert(setCode string, sc scryfallCard) models.Card {
	card := models.Card{
		ID:       sc.ID,
		Name:     sc.Name,
		Rarity:   models.Rarity(strings.ToLower(sc.Rarity)),
		SetCode:  setCode,
		ManaCost: sc.ManaCost,
		TypeLine: sc.TypeLine,
		Colors:   sc.Colors,
		BackFace: isBackFace(sc),
	}
	if sc.ImageURIs != nil {
		card.ImageURL = sc.ImageURIs.Normal
	}

	for _, f := range sc.CardFaces {
		card.FaceNames = append(card.FaceNames, f.Name)
	}
	if len(sc.CardFaces) > 0 {
		front := sc.CardFaces[0]
		if card.ManaCost == "" {
			card.ManaCost = front.ManaCost
		}
		if card.TypeLine == "" {
			card.TypeLine = front.TypeLine
		}
		if card.ImageURL == "" && front.ImageURIs != nil {
			card.ImageURL = front.ImageURIs.Normal
		}
		if len(card.Colors) == 0 {
			card.Colors = faceColors(sc.CardFaces)
		}
	}
	return card
}

// isBackFace reports whether a printing is only reachable through another
// card: the result of a meld or a "b" side collector number
func isBackFace(sc scryfallCard) bool {
	for _, p := range sc.AllParts {
		if p.Component == "meld_result" && p.ID == sc.ID {
			return true
		}
	}
	return strings.HasSuffix(strings.ToLower(sc.CollectorNumber), "b")
}

func faceColors(faces []scryfallFace) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range faces {
		for _, c := range f.Colors {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// LoadFile reads and parses one set dump
func LoadFile(path string) (models.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Catalog{}, err
	}
	cat, err := Parse(data)
	if err != nil {
		return models.Catalog{}, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// LoadDir loads every set dump in dir, sorted by set code. A missing
// directory yields no catalogs.
func LoadDir(dir string) ([]models.Catalog, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+FileSuffix))
	if err != nil {
		return nil, err
	}
	var out []models.Catalog
	for _, path := range matches {
		cat, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		logger.Debug("Parsed set dump", "path", path, "set_code", cat.SetCode, "cards", len(cat.Cards))
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SetCode < out[j].SetCode })
	return out, nil
}

// Provider looks up catalogs by set code
type Provider interface {
	Catalog(setCode string) (models.Catalog, bool)
	SetCodes() []string
}

// MemoryProvider is a Provider over catalogs held in memory
type MemoryProvider struct {
	mu       sync.RWMutex
	catalogs map[string]models.Catalog
}

// NewMemoryProvider creates a provider holding the given catalogs
func NewMemoryProvider(catalogs ...models.Catalog) *MemoryProvider {
	p := &MemoryProvider{catalogs: make(map[string]models.Catalog)}
	for _, c := range catalogs {
		p.Add(c)
	}
	return p
}

// Add registers or replaces a catalog
func (p *MemoryProvider) Add(c models.Catalog) {
	p.mu.Lock()
	p.catalogs[c.SetCode] = c
	p.mu.Unlock()
}

func (p *MemoryProvider) Catalog(setCode string) (models.Catalog, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.catalogs[setCode]
	return c, ok
}

func (p *MemoryProvider) SetCodes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	codes := make([]string, 0, len(p.catalogs))
	for code := range p.catalogs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
