package handler

import (
	"context"
	"log/slog"
	"net/http"

	"chat-relay/internal/middleware"
	"chat-relay/internal/service"
	ws "chat-relay/internal/websocket"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades connections and hands them to the hub
type WebSocketHandler struct {
	hub      *ws.Hub
	relay    *service.RelayService
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. allowedOrigins is the
// comma-separated origin allow-list; "*" allows any origin.
func NewWebSocketHandler(hub *ws.Hub, relay *service.RelayService, allowedOrigins string) *WebSocketHandler {
	origins := middleware.ParseOrigins(allowedOrigins)

	return &WebSocketHandler{
		hub:   hub,
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients send no Origin header
					return true
				}
				for _, o := range origins {
					if o == origin || o == "*" {
						return true
					}
				}
				return false
			},
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}

	// The request context dies when this handler returns; the client owns its
	// own lifecycle from here.
	client := ws.NewClient(context.Background(), h.hub, conn, h.relay)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
