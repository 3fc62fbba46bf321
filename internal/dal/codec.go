package dal

import (
	"encoding/json"
	"fmt"

	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

func encodeState(state *models.DraftState) ([]byte, error) {
	if state == nil || state.DraftID == "" {
		return nil, fmt.Errorf("cannot store a draft without an id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode draft %s: %w", state.DraftID, err)
	}
	return data, nil
}

func decodeState(data []byte) (*models.DraftState, error) {
	var state models.DraftState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if state.Packs == nil {
		state.Packs = make(map[int]map[int]models.Pack)
	}
	if state.PlayerDecks == nil {
		state.PlayerDecks = make(map[int][]string)
	}
	return &state, nil
}
