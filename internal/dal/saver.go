package dal

import (
	"context"
	"sync"
	"time"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

// ErrorHook receives storage failures that never reach the action caller
type ErrorHook func(draftID string, err error)

// AsyncSaver writes draft states to a store off the caller's path
type AsyncSaver struct {
	store   DraftStore
	timeout time.Duration
	onError ErrorHook
	wg      sync.WaitGroup
}

// NewAsyncSaver creates a saver. A nil hook logs failures.
func NewAsyncSaver(store DraftStore, timeout time.Duration, onError ErrorHook) *AsyncSaver {
	if onError == nil {
		onError = func(draftID string, err error) {
			logger.Error("Failed to save draft", "draft_id", draftID, "error", err)
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncSaver{store: store, timeout: timeout, onError: onError}
}

// SaveAsync schedules a save and returns immediately
func (s *AsyncSaver) SaveAsync(state *models.DraftState) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.store.Save(ctx, state); err != nil {
			s.onError(state.DraftID, err)
			return
		}
		logger.Debug("Saved draft", "draft_id", state.DraftID, "actions", len(state.ActionHistory))
	}()
}

// Wait blocks until every scheduled save has finished
func (s *AsyncSaver) Wait() {
	s.wg.Wait()
}
