package dal

import (
	"context"
	"errors"
	"time"

	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

// ErrNotFound is returned by Load and Delete for unknown draft ids
var ErrNotFound = errors.New("draft not found in store")

// DraftStore persists whole draft states, action history included
type DraftStore interface {
	// Save stores state unless the stored copy already holds a longer history
	Save(ctx context.Context, state *models.DraftState) error
	Load(ctx context.Context, draftID string) (*models.DraftState, error)
	Delete(ctx context.Context, draftID string) error
	// List returns summaries, most recently updated first
	List(ctx context.Context) ([]models.DraftSummary, error)
	Stats(ctx context.Context) (StoreStats, error)
	Cleanup(ctx context.Context, policy RetentionPolicy) (int, error)
	Close() error
}

// StoreStats is the storage audit view
type StoreStats struct {
	Drafts     int       `json:"drafts"`
	TotalBytes int64     `json:"totalBytes"`
	Oldest     time.Time `json:"oldest,omitempty"`
	Newest     time.Time `json:"newest,omitempty"`
}

// RetentionPolicy bounds what Cleanup keeps. Zero fields disable a rule.
type RetentionPolicy struct {
	MaxAge   time.Duration
	MaxCount int
	// Now anchors MaxAge; the zero value means time.Now
	Now time.Time
}

func (p RetentionPolicy) cutoff() (time.Time, bool) {
	if p.MaxAge <= 0 {
		return time.Time{}, false
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	return now.Add(-p.MaxAge), true
}
