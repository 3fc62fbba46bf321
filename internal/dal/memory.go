package dal

import (
	"context"
	"sort"
	"sync"

	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

type memoryRecord struct {
	summary models.DraftSummary
	data    []byte
}

// MemoryStore implements DraftStore in process memory. Records are kept
// encoded so a load never aliases a saved state.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]memoryRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]memoryRecord)}
}

func (m *MemoryStore) Save(ctx context.Context, state *models.DraftState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.drafts[state.DraftID]; ok && existing.summary.ActionCount > len(state.ActionHistory) {
		return nil
	}
	m.drafts[state.DraftID] = memoryRecord{summary: state.Summary(), data: data}
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, draftID string) (*models.DraftState, error) {
	m.mu.RLock()
	rec, ok := m.drafts[draftID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeState(rec.data)
}

func (m *MemoryStore) Delete(ctx context.Context, draftID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[draftID]; !ok {
		return ErrNotFound
	}
	delete(m.drafts, draftID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]models.DraftSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked(), nil
}

// sortedLocked returns summaries newest first, ties broken by id
func (m *MemoryStore) sortedLocked() []models.DraftSummary {
	out := make([]models.DraftSummary, 0, len(m.drafts))
	for _, rec := range m.drafts {
		out = append(out, rec.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].DraftID < out[j].DraftID
	})
	return out
}

func (m *MemoryStore) Stats(ctx context.Context) (StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats StoreStats
	for _, rec := range m.drafts {
		stats.Drafts++
		stats.TotalBytes += int64(len(rec.data))
		updated := rec.summary.UpdatedAt
		if stats.Oldest.IsZero() || updated.Before(stats.Oldest) {
			stats.Oldest = updated
		}
		if updated.After(stats.Newest) {
			stats.Newest = updated
		}
	}
	return stats, nil
}

func (m *MemoryStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	if cutoff, ok := policy.cutoff(); ok {
		for id, rec := range m.drafts {
			if rec.summary.UpdatedAt.Before(cutoff) {
				delete(m.drafts, id)
				removed++
			}
		}
	}
	if policy.MaxCount > 0 {
		for _, s := range m.sortedLocked()[min(policy.MaxCount, len(m.drafts)):] {
			delete(m.drafts, s.DraftID)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
