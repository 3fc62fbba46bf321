package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Billy-Davies-2/flashdraft/internal/bots"
	"github.com/Billy-Davies-2/flashdraft/internal/clickhouse"
	"github.com/Billy-Davies-2/flashdraft/internal/engine"
	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
	"github.com/Billy-Davies-2/flashdraft/internal/packgen"
	"github.com/Billy-Davies-2/flashdraft/internal/pubsub"
)

// APIHandlers contains all API handler methods
type APIHandlers struct {
	engine    *engine.Engine
	pubsub    *pubsub.PubSub
	bots      *bots.AutoPicker
	analytics clickhouse.PickSink
}

// NewAPIHandlers creates a new API handlers instance. A nil picker leaves
// bot seats to external callers; a nil sink disables card stats.
func NewAPIHandlers(eng *engine.Engine, ps *pubsub.PubSub, picker *bots.AutoPicker, analytics clickhouse.PickSink) *APIHandlers {
	return &APIHandlers{
		engine:    eng,
		pubsub:    ps,
		bots:      picker,
		analytics: analytics,
	}
}

// Drafts lists draft ids on GET and creates a draft on POST
func (h *APIHandlers) Drafts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"draftIds": h.engine.GetAllDraftIDs()})
	case http.MethodPost:
		h.createDraft(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *APIHandlers) createDraft(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDraftPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Failed to decode create draft request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := h.engine.ApplyAction(models.NewCreateDraft(req, time.Time{}))
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("Created draft", "draft_id", state.DraftID, "set_code", state.SetCode, "players", state.PlayerCount)
	writeJSON(w, http.StatusCreated, state)
}

// StartDraft opens round one and lets the bots take their first picks
func (h *APIHandlers) StartDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DraftID string `json:"draftId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := h.engine.ApplyAction(models.NewStartDraft(req.DraftID, time.Time{}))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.runBots(state))
}

// HumanPick submits the human seat's pick, then the bot picks it unblocks
func (h *APIHandlers) HumanPick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DraftID     string `json:"draftId"`
		CardID      string `json:"cardId"`
		PlayerIndex *int   `json:"playerIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Failed to decode pick request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.CardID == "" {
		http.Error(w, "Missing cardId", http.StatusBadRequest)
		return
	}

	seat := 0
	if req.PlayerIndex != nil {
		seat = *req.PlayerIndex
	} else {
		current, ok := h.engine.GetDraftState(req.DraftID)
		if !ok {
			writeError(w, fmt.Errorf("%w: %s", engine.ErrDraftNotFound, req.DraftID))
			return
		}
		seat = current.HumanPlayerIndex
	}

	logger.Info("Human pick", "draft_id", req.DraftID, "seat", seat, "card_id", req.CardID)
	state, err := h.engine.ApplyAction(models.NewHumanPick(req.DraftID, seat, req.CardID, time.Time{}))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.runBots(state))
}

// ApplyAction submits a raw action
func (h *APIHandlers) ApplyAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var action models.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	state, err := h.engine.ApplyAction(action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetDraftState returns the current state of one draft
func (h *APIHandlers) GetDraftState(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	state, ok := h.engine.GetDraftState(id)
	if !ok {
		http.Error(w, "Draft not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Replay rebuilds a draft as it stood at a position
func (h *APIHandlers) Replay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}
	round, err := strconv.Atoi(q.Get("round"))
	if err != nil {
		http.Error(w, "Invalid round parameter", http.StatusBadRequest)
		return
	}
	pick, err := strconv.Atoi(q.Get("pick"))
	if err != nil {
		http.Error(w, "Invalid pick parameter", http.StatusBadRequest)
		return
	}

	state, err := h.engine.ReplayToPosition(id, round, pick)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ValidatePacks reports the shape of each pack of a round as it was opened.
// The round defaults to the draft's current round.
func (h *APIHandlers) ValidatePacks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}
	current, ok := h.engine.GetDraftState(id)
	if !ok {
		http.Error(w, "Draft not found", http.StatusNotFound)
		return
	}

	round := current.CurrentRound
	if raw := q.Get("round"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid round parameter", http.StatusBadRequest)
			return
		}
		round = n
	}

	opened, err := h.engine.ReplayToPosition(id, round, 1)
	if err != nil {
		writeError(w, err)
		return
	}
	packs, ok := opened.Packs[round]
	if !ok {
		http.Error(w, "Round has no packs", http.StatusNotFound)
		return
	}

	seats := make(map[string]packgen.PackHealth, len(packs))
	valid := true
	for seat, pack := range packs {
		health := packgen.Health(pack)
		valid = valid && health.Valid
		seats[strconv.Itoa(seat)] = health
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"draftId": id,
		"round":   round,
		"valid":   valid,
		"seats":   seats,
	})
}

// CardStats returns pick analytics for a set
func (h *APIHandlers) CardStats(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		http.Error(w, "Analytics not configured", http.StatusServiceUnavailable)
		return
	}
	set := r.URL.Query().Get("set")
	if set == "" {
		http.Error(w, "Missing set parameter", http.StatusBadRequest)
		return
	}

	stats, err := h.analytics.CardStats(r.Context(), set)
	if err != nil {
		logger.Error("Failed to query card stats", "set_code", set, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []clickhouse.CardStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// EventsSSE provides Server-Sent Events for realtime updates. A draftId
// query parameter narrows the stream to one draft.
func (h *APIHandlers) EventsSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	var eventChan chan pubsub.Event
	if id := r.URL.Query().Get("draftId"); id != "" {
		eventChan = h.pubsub.SubscribeDraft(id)
	} else {
		eventChan = h.pubsub.Subscribe()
	}
	defer h.pubsub.Unsubscribe(eventChan)

	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
	flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flush()
		case <-r.Context().Done():
			logger.Debug("SSE client disconnected")
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush()
		}
	}
}

// runBots lets the bot seats catch up. Bot failures are logged and the
// latest state is returned regardless.
func (h *APIHandlers) runBots(state *models.DraftState) *models.DraftState {
	if h.bots == nil || state.Status != models.StatusActive {
		return state
	}
	_, next, err := h.bots.PickForBots(state.DraftID)
	if err != nil {
		logger.Error("Bot picks failed", "draft_id", state.DraftID, "error", err)
	}
	if next == nil {
		return state
	}
	return next
}

// StatusFor maps engine and decoding errors to HTTP status codes
func StatusFor(err error) int {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, engine.ErrDraftNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSetNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidPayload),
		errors.Is(err, engine.ErrUnknownActionType),
		errors.Is(err, engine.ErrInvalidPick),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrDraftNotActive),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrDraftExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
