package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Billy-Davies-2/flashdraft/internal/bots"
	"github.com/Billy-Davies-2/flashdraft/internal/engine"
	"github.com/Billy-Davies-2/flashdraft/internal/mocks"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
	"github.com/Billy-Davies-2/flashdraft/internal/pubsub"
)

func testCatalog() models.Catalog {
	c := models.Catalog{SetCode: "tst"}
	add := func(n int, r models.Rarity) {
		for i := 0; i < n; i++ {
			c.Cards = append(c.Cards, models.Card{ID: fmt.Sprintf("%s-%d", r, i), Name: "card", Rarity: r, SetCode: "tst"})
		}
	}
	add(5, models.RarityMythic)
	add(10, models.RarityRare)
	add(30, models.RarityUncommon)
	add(120, models.RarityCommon)
	return c
}

func setupTestHandlers(withBots bool) (*APIHandlers, *engine.Engine, *pubsub.PubSub) {
	ps := pubsub.New()
	eng := engine.New(engine.WithPublisher(ps))
	eng.LoadSet(testCatalog())
	var picker *bots.AutoPicker
	if withBots {
		picker = bots.NewAutoPicker(eng)
	}
	return NewAPIHandlers(eng, ps, picker, mocks.NewMockClickHouseClient()), eng, ps
}

func do(t *testing.T, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) models.DraftState {
	t.Helper()
	var state models.DraftState
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return state
}

func createDraft(t *testing.T, h *APIHandlers, id string) {
	t.Helper()
	w := do(t, h.Drafts, http.MethodPost, "/api/drafts", fmt.Sprintf(`{"draftId":%q,"seed":"seed","setCode":"tst"}`, id))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateAndListDrafts(t *testing.T) {
	h, _, _ := setupTestHandlers(false)
	createDraft(t, h, "d1")

	w := do(t, h.Drafts, http.MethodGet, "/api/drafts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var resp struct {
		DraftIDs []string `json:"draftIds"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.DraftIDs) != 1 || resp.DraftIDs[0] != "d1" {
		t.Errorf("draftIds = %v", resp.DraftIDs)
	}

	// duplicate
	w = do(t, h.Drafts, http.MethodPost, "/api/drafts", `{"draftId":"d1","setCode":"tst"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create: status %d, want 409", w.Code)
	}
}

func TestDraftsMethodNotAllowed(t *testing.T) {
	h, _, _ := setupTestHandlers(false)
	w := do(t, h.Drafts, http.MethodDelete, "/api/drafts", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status %d, want 405", w.Code)
	}
}

func TestStartAndPickWithBots(t *testing.T) {
	h, _, _ := setupTestHandlers(true)
	createDraft(t, h, "d1")

	w := do(t, h.StartDraft, http.MethodPost, "/api/drafts/start", `{"draftId":"d1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d: %s", w.Code, w.Body.String())
	}
	state := decodeState(t, w)
	if state.Status != models.StatusActive {
		t.Fatalf("status = %s", state.Status)
	}
	// bots have picked, the human has not
	for seat := 1; seat < state.PlayerCount; seat++ {
		if len(state.PlayerDecks[seat]) != 1 {
			t.Errorf("seat %d has %d cards after start", seat, len(state.PlayerDecks[seat]))
		}
	}

	card := state.Packs[1][0].Cards[0].ID
	w = do(t, h.HumanPick, http.MethodPost, "/api/drafts/pick", fmt.Sprintf(`{"draftId":"d1","cardId":%q}`, card))
	if w.Code != http.StatusOK {
		t.Fatalf("pick: status %d: %s", w.Code, w.Body.String())
	}
	state = decodeState(t, w)
	if state.CurrentPick != 2 {
		t.Errorf("pick = %d, want 2", state.CurrentPick)
	}
	if len(state.PlayerDecks[1]) != 2 {
		t.Errorf("bots did not pick at the new position: %d", len(state.PlayerDecks[1]))
	}
}

func TestErrorStatusCodes(t *testing.T) {
	h, _, _ := setupTestHandlers(false)
	createDraft(t, h, "d1")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		target  string
		body    string
		want    int
	}{
		{"pick before start", h.HumanPick, http.MethodPost, "/api/drafts/pick", `{"draftId":"d1","cardId":"x"}`, http.StatusConflict},
		{"pick unknown draft", h.HumanPick, http.MethodPost, "/api/drafts/pick", `{"draftId":"nope","cardId":"x"}`, http.StatusNotFound},
		{"pick missing card", h.HumanPick, http.MethodPost, "/api/drafts/pick", `{"draftId":"d1"}`, http.StatusBadRequest},
		{"start unknown draft", h.StartDraft, http.MethodPost, "/api/drafts/start", `{"draftId":"nope"}`, http.StatusNotFound},
		{"start wrong method", h.StartDraft, http.MethodGet, "/api/drafts/start", "", http.StatusMethodNotAllowed},
		{"create unknown set is accepted", h.Drafts, http.MethodPost, "/api/drafts", `{"draftId":"d2","setCode":"zzz"}`, http.StatusCreated},
		{"create bad json", h.Drafts, http.MethodPost, "/api/drafts", `{`, http.StatusBadRequest},
		{"create bad seats", h.Drafts, http.MethodPost, "/api/drafts", `{"draftId":"d3","setCode":"tst","playerCount":2,"humanPlayerIndex":5}`, http.StatusBadRequest},
		{"action unknown type", h.ApplyAction, http.MethodPost, "/api/drafts/action", `{"type":"explode","payload":{}}`, http.StatusBadRequest},
		{"action synthesized type", h.ApplyAction, http.MethodPost, "/api/drafts/action", `{"type":"advance_position","payload":{"draftId":"d1","round":1,"pick":2}}`, http.StatusBadRequest},
		{"state missing id", h.GetDraftState, http.MethodGet, "/api/drafts/state", "", http.StatusBadRequest},
		{"state unknown", h.GetDraftState, http.MethodGet, "/api/drafts/state?id=nope", "", http.StatusNotFound},
		{"replay bad round", h.Replay, http.MethodGet, "/api/drafts/replay?id=d1&round=x&pick=1", "", http.StatusBadRequest},
		{"replay unknown", h.Replay, http.MethodGet, "/api/drafts/replay?id=nope&round=1&pick=1", "", http.StatusNotFound},
		{"validate unknown", h.ValidatePacks, http.MethodGet, "/api/drafts/packs/validate?id=nope", "", http.StatusNotFound},
		{"stats missing set", h.CardStats, http.MethodGet, "/api/stats/cards", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, tt.handler, tt.method, tt.target, tt.body)
			if w.Code != tt.want {
				t.Errorf("status %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := do(t, h.StartDraft, http.MethodPost, "/api/drafts/start", `{"draftId":"d2"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("start with unknown set: status %d, want 422", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.ErrDraftNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", engine.ErrInvalidPick), http.StatusBadRequest},
		{engine.ErrInvalidTransition, http.StatusConflict},
		{engine.ErrSetNotFound, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestApplyRawActionAndReplay(t *testing.T) {
	h, eng, _ := setupTestHandlers(false)
	createDraft(t, h, "d1")

	w := do(t, h.ApplyAction, http.MethodPost, "/api/drafts/action", `{"type":"start_draft","payload":{"draftId":"d1"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start action: status %d: %s", w.Code, w.Body.String())
	}
	started := decodeState(t, w)

	// everyone picks the top card
	for seat := 0; seat < started.PlayerCount; seat++ {
		typ := "bot_pick"
		if seat == started.HumanPlayerIndex {
			typ = "human_pick"
		}
		card := started.Packs[1][seat].Cards[0].ID
		body := fmt.Sprintf(`{"type":%q,"payload":{"draftId":"d1","playerIndex":%d,"cardId":%q}}`, typ, seat, card)
		if w := do(t, h.ApplyAction, http.MethodPost, "/api/drafts/action", body); w.Code != http.StatusOK {
			t.Fatalf("seat %d pick: status %d: %s", seat, w.Code, w.Body.String())
		}
	}
	live, _ := eng.GetDraftState("d1")
	if live.CurrentPick != 2 {
		t.Fatalf("pick = %d, want 2", live.CurrentPick)
	}

	w = do(t, h.Replay, http.MethodGet, "/api/drafts/replay?id=d1&round=1&pick=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("replay: status %d", w.Code)
	}
	replayed := decodeState(t, w)
	if replayed.CurrentPick != 1 || len(replayed.Packs[1][0].Cards) != models.PackSize {
		t.Errorf("replay at (1,1): pick %d, pack size %d", replayed.CurrentPick, len(replayed.Packs[1][0].Cards))
	}
}

func TestValidatePacks(t *testing.T) {
	h, _, _ := setupTestHandlers(true)
	createDraft(t, h, "d1")
	if w := do(t, h.StartDraft, http.MethodPost, "/api/drafts/start", `{"draftId":"d1"}`); w.Code != http.StatusOK {
		t.Fatalf("start: %d", w.Code)
	}

	w := do(t, h.ValidatePacks, http.MethodGet, "/api/drafts/packs/validate?id=d1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("validate: status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Round int                        `json:"round"`
		Valid bool                       `json:"valid"`
		Seats map[string]json.RawMessage `json:"seats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Round != 1 || !resp.Valid || len(resp.Seats) != models.DefaultSeats {
		t.Errorf("unexpected validation: round=%d valid=%v seats=%d", resp.Round, resp.Valid, len(resp.Seats))
	}

	w = do(t, h.ValidatePacks, http.MethodGet, "/api/drafts/packs/validate?id=d1&round=3", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unopened round: status %d, want 404", w.Code)
	}
}

func TestCardStats(t *testing.T) {
	h, _, _ := setupTestHandlers(false)
	w := do(t, h.CardStats, http.MethodGet, "/api/stats/cards?set=tst", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}

	h.analytics = nil
	if w := do(t, h.CardStats, http.MethodGet, "/api/stats/cards?set=tst", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without analytics: status %d, want 503", w.Code)
	}
}

func TestEventsSSEStreamsDraftEvents(t *testing.T) {
	h, _, ps := setupTestHandlers(false)
	srv := httptest.NewServer(http.HandlerFunc(h.EventsSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?draftId=d1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	first, err := reader.ReadString('\n')
	if err != nil || !strings.Contains(first, "connected") {
		t.Fatalf("first line = %q, err = %v", first, err)
	}

	// wait for the subscription to register
	deadline := time.Now().Add(2 * time.Second)
	for ps.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ps.Publish(pubsub.NewEvent("draft:start_draft", "other", nil))
	ps.Publish(pubsub.NewEvent("draft:start_draft", "d1", nil))

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev pubsub.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.DraftID != "d1" {
			t.Fatalf("received event for %q", ev.DraftID)
		}
		return
	}
}

func TestHealthHandlers(t *testing.T) {
	health := NewHealth()
	health.AddCheck("database", true, func(ctx context.Context) error { return nil })
	failing := errors.New("down")
	health.AddCheck("clickhouse", false, func(ctx context.Context) error { return failing })

	if w := do(t, health.LivenessHandler, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("liveness: %d", w.Code)
	}
	if w := do(t, health.ReadinessHandler, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readiness with non-critical failure: %d", w.Code)
	}

	w := do(t, health.HealthHandler, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health: %d, want 503", w.Code)
	}
	var resp struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || resp.Checks["clickhouse"]["status"] != "unhealthy" {
		t.Errorf("unexpected health body: %+v", resp)
	}

	health.AddCheck("nats", true, func(ctx context.Context) error { return failing })
	if w := do(t, health.ReadinessHandler, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness with critical failure: %d", w.Code)
	}
}

func TestDraftSocket(t *testing.T) {
	h, _, _ := setupTestHandlers(true)
	createDraft(t, h, "d1")

	srv := httptest.NewServer(http.HandlerFunc(h.DraftSocket))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?draftId=d1"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first SocketMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if first.Kind != "state" || first.State.Status != models.StatusCreated {
		t.Fatalf("unexpected first frame: %+v", first)
	}

	// nextOf skips event frames until one of the wanted kind arrives
	nextOf := func(kind string) SocketMessage {
		t.Helper()
		for {
			var msg SocketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("read: %v", err)
			}
			if msg.Kind == kind {
				return msg
			}
		}
	}

	if err := conn.WriteJSON(models.NewStartDraft("d1", time.Time{})); err != nil {
		t.Fatalf("write: %v", err)
	}
	started := nextOf("state")
	if started.State.Status != models.StatusActive || len(started.State.PlayerDecks[1]) != 1 {
		t.Errorf("start reply: status %s, seat 1 cards %d", started.State.Status, len(started.State.PlayerDecks[1]))
	}

	if err := conn.WriteJSON(models.NewStartDraft("other", time.Time{})); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := nextOf("error"); !strings.Contains(msg.Error, "another draft") {
		t.Errorf("error = %q", msg.Error)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"explode"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := nextOf("error"); msg.Error == "" {
		t.Error("expected an error frame for an unknown action")
	}
}

func TestDraftSocketRejectsUnknownDraft(t *testing.T) {
	h, _, _ := setupTestHandlers(false)
	w := do(t, h.DraftSocket, http.MethodGet, "/api/ws?draftId=nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", w.Code)
	}
}
