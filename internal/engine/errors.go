package engine

import (
	"errors"

	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

var (
	// ErrUnknownActionType rejects absent payloads and unrecognized kinds
	ErrUnknownActionType = models.ErrUnknownActionType
	// ErrDraftNotFound is returned when an action names a draft the engine does not hold
	ErrDraftNotFound = errors.New("draft not found")
	// ErrDraftExists is returned when a create action reuses a live draft id
	ErrDraftExists = errors.New("draft already exists")
	// ErrSetNotFound is returned when packs are needed for a set with no loaded catalog
	ErrSetNotFound = errors.New("set data not found")
	// ErrInvalidPayload is returned for payloads with missing or out-of-range fields
	ErrInvalidPayload = errors.New("invalid action payload")
	// ErrInvalidPick is returned for picks the current table cannot accept
	ErrInvalidPick = errors.New("invalid pick")
	// ErrDraftNotActive is returned for picks before the draft has started
	ErrDraftNotActive = errors.New("draft is not active")
	// ErrInvalidTransition is returned when an action does not apply to the draft's status
	ErrInvalidTransition = errors.New("invalid state transition")
)
