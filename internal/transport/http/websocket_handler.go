package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/cooper437/commodities-research/internal/infrastructure"
	ws "github.com/cooper437/commodities-research/internal/websocket"
)

// WebSocketHandler upgrades HTTP connections and registers clients with the
// status hub
type WebSocketHandler struct {
	hub      *ws.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a websocket handler. In development mode any
// origin may connect; otherwise the origin must appear in allowedOrigins.
// Requests without an Origin header (curl, same-process tests) are always
// allowed.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, development bool, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("handler", "websocket"))

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	h := &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || development || allowed[origin] {
				return true
			}
			logger.WarnContext(r.Context(), "websocket origin rejected",
				slog.String("origin", origin))
			return false
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			logger.ErrorContext(r.Context(), "websocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()))
			http.Error(w, http.StatusText(status), status)
		},
	}

	return h
}

// ServeHTTP handles GET /ws
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	traceID := infrastructure.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = r.Header.Get("X-Request-ID")
	}
	if traceID == "" {
		traceID = fmt.Sprintf("ws-%d", time.Now().UnixNano())
	}
	ctx = infrastructure.WithTraceID(ctx, traceID)

	h.logger.InfoContext(ctx, "websocket upgrade request",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("origin", r.Header.Get("Origin")))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.logger.ErrorContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}

	ws.ServeWSWithTrace(h.hub, conn, traceID)

	h.logger.InfoContext(ctx, "websocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("trace_id", traceID))
}

// Stats handles GET /api/websocket/stats
func (h *WebSocketHandler) Stats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.hub.Stats())
}
