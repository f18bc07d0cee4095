package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chat-relay/internal/observability"
	"chat-relay/internal/service"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// MessageHandler serves the stateless history endpoint
type MessageHandler struct {
	relay *service.RelayService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(relay *service.RelayService) *MessageHandler {
	return &MessageHandler{
		relay: relay,
	}
}

// History returns every persisted message, oldest first. Takes no parameters.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := observability.WithRequestID(r.Context(), chimiddleware.GetReqID(r.Context()))

	messages, err := h.relay.History(ctx)
	if err != nil {
		observability.FromContext(ctx).Error("failed to load message history",
			slog.String("error", err.Error()))
		http.Error(w, `{"error":"Failed to retrieve messages"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
