package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/cooper437/commodities-research/internal/websocket"
)

func newWebSocketServer(t *testing.T, allowedOrigins []string, development bool) (*httptest.Server, *ws.Hub) {
	t.Helper()

	hub := ws.NewHub(testLogger())
	hub.Start()
	t.Cleanup(hub.Stop)

	handler := NewWebSocketHandler(hub, allowedOrigins, development, testLogger())

	r := chi.NewRouter()
	r.Get("/ws", handler.ServeHTTP)
	r.Get("/api/websocket/stats", handler.Stats)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return srv, hub
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebSocketHandler_Connect(t *testing.T) {
	srv, hub := newWebSocketServer(t, nil, true)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "client never registered with the hub")
}

func TestWebSocketHandler_NonUpgradeRequest(t *testing.T) {
	hub := ws.NewHub(testLogger())
	hub.Start()
	t.Cleanup(hub.Stop)

	handler := NewWebSocketHandler(hub, nil, true, testLogger())

	req := httptest.NewRequest("GET", "/ws", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketHandler_OriginChecks(t *testing.T) {
	srv, hub := newWebSocketServer(t, []string{"http://allowed.example"}, false)

	t.Run("allowed origin connects", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://allowed.example"}}
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
		require.NoError(t, err)
		defer conn.Close()
		defer resp.Body.Close()

		require.Eventually(t, func() bool {
			return hub.ClientCount() == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("unknown origin is rejected", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://evil.example"}}
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
		require.Error(t, err)
		if conn != nil {
			conn.Close()
		}
		require.NotNil(t, resp)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestWebSocketHandler_Stats(t *testing.T) {
	hub := ws.NewHub(testLogger())
	hub.Start()
	t.Cleanup(hub.Stop)

	handler := NewWebSocketHandler(hub, nil, true, testLogger())

	req := httptest.NewRequest("GET", "/api/websocket/stats", nil)
	rec := httptest.NewRecorder()

	handler.Stats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "active_clients")
}
