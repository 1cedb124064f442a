package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/reposcout/internal/agent"
	"github.com/cloo-solutions/reposcout/internal/api"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/events"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendTimeout  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// API key auth runs before the upgrade
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket message types from client.
const (
	wsMsgCorrection = "correction"
	wsMsgChat       = "chat"
)

// WebSocket message types to client.
const (
	wsMsgAck   = "ack"
	wsMsgError = "error"
	wsMsgPhase = "phase"
)

// wsMessage is the flat envelope used on the agent socket in both directions.
type wsMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Query     string `json:"query,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Answer    string `json:"answer,omitempty"`
}

type wsPhaseMessage struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

type AnalystLookup interface {
	Get(key string) (*agent.Analyst, bool)
}

type ChatService interface {
	Ask(ctx context.Context, requestID, question string) (string, error)
}

type RequestGetter interface {
	Get(ctx context.Context, id string) (*domain.SearchRequest, error)
}

// WebsocketHandler serves the per-analyst channel and the phase event stream.
type WebsocketHandler struct {
	analysts AnalystLookup
	chat     ChatService
	requests RequestGetter
	bus      events.Bus
}

func NewWebsocketHandler(analysts AnalystLookup, chat ChatService, requests RequestGetter, bus events.Bus) *WebsocketHandler {
	return &WebsocketHandler{analysts: analysts, chat: chat, requests: requests, bus: bus}
}

// Agent relays corrections to a running analyst and answers follow-up
// questions about its request.
func (h *WebsocketHandler) Agent(w http.ResponseWriter, r *http.Request) {
	analyst, ok := h.analysts.Get(chi.URLParam(r, "key"))
	if !ok {
		api.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: agent %s read: %v", analyst.Key(), err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			writeWS(conn, wsMessage{Type: wsMsgError, Message: "invalid message format"})
			continue
		}

		switch msg.Type {
		case wsMsgCorrection:
			writeWS(conn, h.correct(r.Context(), analyst, msg))
		case wsMsgChat:
			writeWS(conn, h.answer(r.Context(), analyst, msg))
		default:
			writeWS(conn, wsMessage{Type: wsMsgError, Message: "unknown message type: " + msg.Type})
		}
	}
}

func (h *WebsocketHandler) correct(ctx context.Context, analyst *agent.Analyst, msg wsMessage) wsMessage {
	if strings.TrimSpace(msg.Message) == "" {
		return wsMessage{Type: wsMsgError, Message: "correction message is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, wsSendTimeout)
	defer cancel()
	if _, err := analyst.Channel().Send(ctx, agent.Correction{Text: msg.Message}); err != nil {
		if errors.Is(err, agent.ErrChannelClosed) {
			return wsMessage{Type: wsMsgError, Message: "agent is no longer running"}
		}
		return wsMessage{Type: wsMsgError, Message: "correction not delivered"}
	}
	return wsMessage{Type: wsMsgAck}
}

func (h *WebsocketHandler) answer(ctx context.Context, analyst *agent.Analyst, msg wsMessage) wsMessage {
	requestID := msg.RequestID
	if requestID == "" {
		requestID = analyst.RequestID()
	}

	answer, err := h.chat.Ask(ctx, requestID, msg.Query)
	if err != nil {
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			return wsMessage{Type: wsMsgError, Message: derr.Message}
		}
		log.Printf("ws: chat for %s failed: %v", requestID, err)
		return wsMessage{Type: wsMsgError, Message: "chat failed"}
	}
	return wsMessage{Type: wsMsgChat, Answer: answer}
}

// Events streams phase changes of one request until it reaches a terminal
// phase or the client disconnects. The current phase is sent first.
func (h *WebsocketHandler) Events(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// subscribe before reading the snapshot so no transition is missed
	sub, err := h.bus.Subscribe(ctx, requestID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	req, err := h.requests.Get(ctx, requestID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// reads only notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if !writeWS(conn, wsPhaseMessage{Type: wsMsgPhase, RequestID: req.ID, Phase: string(req.Status), Message: req.FailureMessage, At: req.UpdatedAt}) {
		return
	}
	if req.Status.IsTerminal() {
		closeWS(conn)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if !writeWS(conn, wsPhaseMessage{Type: wsMsgPhase, RequestID: e.RequestID, Phase: string(e.Phase), Message: e.Message, At: e.At}) {
				return
			}
			if e.Phase.IsTerminal() {
				closeWS(conn)
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("ws: write: %v", err)
		return false
	}
	return true
}

func closeWS(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "request finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
