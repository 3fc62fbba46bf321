package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
	"github.com/Billy-Davies-2/flashdraft/internal/pubsub"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SocketMessage is every frame the draft socket writes
type SocketMessage struct {
	Kind  string             `json:"kind"`
	Event *pubsub.Event      `json:"event,omitempty"`
	State *models.DraftState `json:"state,omitempty"`
	Error string             `json:"error,omitempty"`
}

// DraftSocket upgrades to a WebSocket bound to one draft. The client sends
// actions as JSON and receives the resulting state, plus every event of the
// draft as it happens.
func (h *APIHandlers) DraftSocket(w http.ResponseWriter, r *http.Request) {
	draftID := r.URL.Query().Get("draftId")
	if draftID == "" {
		http.Error(w, "Missing draftId parameter", http.StatusBadRequest)
		return
	}
	state, ok := h.engine.GetDraftState(draftID)
	if !ok {
		http.Error(w, "Draft not found", http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "draft_id", draftID, "error", err)
		return
	}

	events := h.pubsub.SubscribeDraft(draftID)
	out := make(chan SocketMessage, 16)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		h.socketWriter(ws, events, out, done)
	}()
	out <- SocketMessage{Kind: "state", State: state}

	logger.Debug("WebSocket client connected", "draft_id", draftID)
	h.socketReader(ws, draftID, out, stopped)

	close(done)
	<-stopped
	h.pubsub.Unsubscribe(events)
	logger.Debug("WebSocket client disconnected", "draft_id", draftID)
}

// socketReader runs until the peer goes away or the writer stops
func (h *APIHandlers) socketReader(ws *websocket.Conn, draftID string, out chan<- SocketMessage, stopped <-chan struct{}) {
	defer ws.Close()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read failed", "draft_id", draftID, "error", err)
			}
			return
		}

		reply := h.socketApply(draftID, data)
		select {
		case out <- reply:
		case <-stopped:
			return
		}
	}
}

// socketApply applies one client frame. Actions naming another draft are
// refused so a socket only ever drives its own draft.
func (h *APIHandlers) socketApply(draftID string, data []byte) SocketMessage {
	var action models.Action
	if err := json.Unmarshal(data, &action); err != nil {
		return SocketMessage{Kind: "error", Error: err.Error()}
	}
	if action.DraftID() != draftID {
		return SocketMessage{Kind: "error", Error: "action targets another draft"}
	}

	state, err := h.engine.ApplyAction(action)
	if err != nil {
		return SocketMessage{Kind: "error", Error: err.Error()}
	}
	if action.Type == models.ActionStartDraft || action.Type == models.ActionHumanPick {
		state = h.runBots(state)
	}
	return SocketMessage{Kind: "state", State: state}
}

func (h *APIHandlers) socketWriter(ws *websocket.Conn, events <-chan pubsub.Event, out <-chan SocketMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	write := func(msg SocketMessage) bool {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteJSON(msg) == nil
	}

	for {
		select {
		case msg := <-out:
			if !write(msg) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !write(SocketMessage{Kind: "event", Event: &ev}) {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
