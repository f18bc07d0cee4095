package websocket

import (
	"context"
	"log/slog"

	"chat-relay/internal/observability"
)

// Hub is the connection registry and fan-out engine. Registration,
// deregistration, and broadcast all funnel through a single goroutine, so
// every broadcast sees a consistent snapshot of the active set: no client is
// visited twice and no live client is skipped mid-mutation.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Broadcast channel
	broadcast chan []byte

	// Register client
	register chan *Client

	// Unregister client
	unregister chan *Client

	// Shutdown signal
	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client] = true
			observability.ConnectionsActive.Inc()
			slog.Info("client registered",
				slog.String("conn_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
					observability.FramesDelivered.Inc()
				default:
					// Client's send buffer is full; a slow peer must never
					// stall delivery to the rest. Drop it.
					observability.FramesDropped.Inc()
					h.closeClientSend(client)
					delete(h.clients, client)
					observability.ConnectionsActive.Dec()
					slog.Warn("dropped slow client",
						slog.String("conn_id", client.id),
						slog.String("remote_addr", client.remoteAddr))
				}
			}
		}
	}
}

// unregisterClient safely removes a client from the hub. Idempotent: a second
// unregister for the same client is a no-op.
func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.closeClientSend(client)
		observability.ConnectionsActive.Dec()
		slog.Info("client unregistered",
			slog.String("conn_id", client.id),
			slog.String("remote_addr", client.remoteAddr))
	}
}

// closeClientSend closes a client's send channel exactly once. The close is
// what makes WritePump exit and send the close frame, so it must happen even
// when frames are still queued.
func (h *Hub) closeClientSend(client *Client) {
	client.closeSend.Do(func() {
		close(client.send)
	})
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for client := range h.clients {
		h.closeClientSend(client)
		slog.Info("closed client connection",
			slog.String("conn_id", client.id))
	}

	slog.Info("hub shutdown complete")
}

// Broadcast queues a serialized message for delivery to every registered
// client, including the one that originated it.
func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

// Register registers a client with the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
