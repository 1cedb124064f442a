package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/reposcout/internal/agent"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/events"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	server   *httptest.Server
	registry *agent.Registry
	chat     *MockChatService
	requests *MockSearchService
	bus      *events.MemoryBus
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	f := &wsFixture{
		registry: agent.NewRegistry(agent.Deps{}),
		chat:     new(MockChatService),
		requests: new(MockSearchService),
		bus:      events.NewMemoryBus(),
	}
	handler := NewWebsocketHandler(f.registry, f.chat, f.requests, f.bus)
	r := chi.NewRouter()
	r.Get("/ws/agents/{key}", handler.Agent)
	r.Get("/ws/requests/{id}/events", handler.Events)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebsocket_CorrectionAcked(t *testing.T) {
	f := newWSFixture(t)
	a := f.registry.GetOrCreate("req-1", "https://github.com/a/b")
	conn := f.dial(t, "/ws/agents/"+a.Key())

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "correction", Message: "weigh maintenance higher"}))

	var reply wsMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ack", reply.Type)
	assert.Equal(t, "weigh maintenance higher", a.Correction())
}

func TestWebsocket_EmptyCorrectionRejected(t *testing.T) {
	f := newWSFixture(t)
	a := f.registry.GetOrCreate("req-1", "https://github.com/a/b")
	conn := f.dial(t, "/ws/agents/"+a.Key())

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "correction", Message: "  "}))

	var reply wsMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Empty(t, a.Correction())
}

func TestWebsocket_Chat(t *testing.T) {
	f := newWSFixture(t)
	a := f.registry.GetOrCreate("req-1", "https://github.com/a/b")
	f.chat.On("Ask", mock.Anything, "req-1", "which one is smallest?").Return("b is smallest", nil)
	conn := f.dial(t, "/ws/agents/"+a.Key())

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "chat", Query: "which one is smallest?"}))

	var reply wsMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "chat", reply.Type)
	assert.Equal(t, "b is smallest", reply.Answer)
}

func TestWebsocket_ChatErrorAndUnknownType(t *testing.T) {
	f := newWSFixture(t)
	a := f.registry.GetOrCreate("req-1", "https://github.com/a/b")
	f.chat.On("Ask", mock.Anything, "req-9", "").Return("", domain.ErrEmptyQuery)
	conn := f.dial(t, "/ws/agents/"+a.Key())

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "chat", RequestID: "req-9"}))
	var reply wsMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "query is required", reply.Message)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "shout"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Message, "unknown message type")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "invalid message format", reply.Message)
}

func TestWebsocket_ClosedChannel(t *testing.T) {
	f := newWSFixture(t)
	a := f.registry.GetOrCreate("req-1", "https://github.com/a/b")
	conn := f.dial(t, "/ws/agents/"+a.Key())

	a.Channel().Close()
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "correction", Message: "late"}))

	var reply wsMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "agent is no longer running", reply.Message)
}

func TestWebsocket_UnknownAgent(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/agents/nope"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocket_EventsStreamUntilTerminal(t *testing.T) {
	f := newWSFixture(t)
	f.requests.On("Get", mock.Anything, "req-1").Return(&domain.SearchRequest{ID: "req-1", Status: domain.RequestStatusHITL}, nil)
	conn := f.dial(t, "/ws/requests/req-1/events")

	var snapshot wsPhaseMessage
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "hitl", snapshot.Phase)

	ctx := context.Background()
	require.NoError(t, f.bus.Publish(ctx, events.PhaseEvent{RequestID: "req-1", Phase: domain.RequestStatusExpansion, At: time.Now()}))
	require.NoError(t, f.bus.Publish(ctx, events.PhaseEvent{RequestID: "req-2", Phase: domain.RequestStatusError, At: time.Now()}))
	require.NoError(t, f.bus.Publish(ctx, events.PhaseEvent{RequestID: "req-1", Phase: domain.RequestStatusCompleted, At: time.Now()}))

	var e wsPhaseMessage
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "expansion", e.Phase)
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "completed", e.Phase)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWebsocket_EventsTerminalSnapshotCloses(t *testing.T) {
	f := newWSFixture(t)
	f.requests.On("Get", mock.Anything, "req-1").Return(&domain.SearchRequest{
		ID: "req-1", Status: domain.RequestStatusError, FailureMessage: "search failed",
	}, nil)
	conn := f.dial(t, "/ws/requests/req-1/events")

	var snapshot wsPhaseMessage
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "error", snapshot.Phase)
	assert.Equal(t, "search failed", snapshot.Message)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWebsocket_EventsUnknownRequest(t *testing.T) {
	f := newWSFixture(t)
	f.requests.On("Get", mock.Anything, "missing").Return(nil, domain.ErrRequestNotFound)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/requests/missing/events"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
