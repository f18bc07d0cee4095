package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/observability"
	"chat-relay/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second // Must be less than pongWait
	submitTimeout = 5 * time.Second
)

// Client bridges one WebSocket connection to the hub and the relay service.
// It owns no state beyond its own connection handle; every parsed submission
// is forwarded to the relay.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         string // registration handle, never reused across reconnects
	remoteAddr string
	relay      *service.RelayService
	writeMu    sync.Mutex
	closed     atomic.Bool
	closeSend  sync.Once
	ctx        context.Context
	ctxCancel  context.CancelFunc
}

// inboundFrame is the payload a client sends. Fields are pointers so a frame
// missing either key can be told apart from one carrying an empty string:
// empty values are legal, absent keys are not.
type inboundFrame struct {
	Username *string `json:"username"`
	Content  *string `json:"content"`
}

func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, relay *service.RelayService) *Client {
	id := uuid.NewString()
	// Stamp the handle into the context so every log and submit downstream
	// carries it.
	clientCtx, cancel := context.WithCancel(observability.WithConnID(ctx, id))

	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		id:         id,
		remoteAddr: conn.RemoteAddr().String(),
		relay:      relay,
		ctx:        clientCtx,
		ctxCancel:  cancel,
	}
}

// ReadPump reads frames from the connection until it errors or closes, then
// unregisters the client exactly once.
func (c *Client) ReadPump() {
	defer func() {
		c.ctxCancel()
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	logger := observability.FromContext(c.ctx)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Warn("failed to set read deadline",
			slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.Warn("failed to set read deadline in pong handler",
				slog.String("error", err.Error()))
			return err
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket error",
					slog.String("error", err.Error()))
			}
			break
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			// Malformed frames are dropped; the session stays open.
			logger.Warn("invalid message format",
				slog.String("error", err.Error()))
			continue
		}
		if frame.Username == nil || frame.Content == nil {
			logger.Warn("message frame missing required fields")
			continue
		}

		ctx, cancel := context.WithTimeout(c.ctx, submitTimeout)
		_, err = c.relay.Submit(ctx, *frame.Username, *frame.Content)
		cancel()
		if err != nil {
			// Fail-closed: the submission is dropped and no error frame is
			// sent. The session stays open.
			if errors.Is(err, domain.ErrPersistenceFailed) {
				logger.Error("message not persisted, dropping submission",
					slog.String("error", err.Error()))
			} else {
				logger.Error("submit failed",
					slog.String("error", err.Error()))
			}
			continue
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				_ = c.writeMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		observability.FromContext(c.ctx).Warn("failed to set write deadline",
			slog.String("error", err.Error()))
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
