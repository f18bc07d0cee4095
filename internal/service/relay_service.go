package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/observability"
)

const publishTimeout = 5 * time.Second

// Broadcaster fans a serialized message out to every registered connection
type Broadcaster interface {
	Broadcast(message []byte)
}

// EventPublisher pushes persisted messages to out-of-process consumers
type EventPublisher interface {
	PublishMessage(ctx context.Context, msg *domain.Message) error
}

// RelayService is the broadcast engine: the single entry point for inbound
// messages. A submission is persisted first and fanned out only on success;
// either a message is persisted and broadcast, or neither.
type RelayService struct {
	store       domain.MessageStore
	broadcaster Broadcaster
	publisher   EventPublisher // optional
}

func NewRelayService(store domain.MessageStore, broadcaster Broadcaster, publisher EventPublisher) *RelayService {
	return &RelayService{
		store:       store,
		broadcaster: broadcaster,
		publisher:   publisher,
	}
}

// Submit persists one message and fans it out to every live connection,
// including the originator (clients rely on the echo to render their own
// message). A persistence failure aborts the broadcast: no partial fan-out
// of unpersisted data.
func (s *RelayService) Submit(ctx context.Context, username, content string) (*domain.Message, error) {
	msg := &domain.Message{
		Username: username,
		Content:  content,
	}

	if err := s.store.Append(ctx, msg); err != nil {
		observability.MessagesSubmitted.WithLabelValues("persistence_failed").Inc()
		return nil, fmt.Errorf("submit: %w", errors.Join(domain.ErrPersistenceFailed, err))
	}

	data, err := json.Marshal(msg)
	if err != nil {
		// The record is durable but cannot be serialized for fan-out; it will
		// still appear in history.
		observability.MessagesSubmitted.WithLabelValues("marshal_failed").Inc()
		return nil, fmt.Errorf("submit: marshal persisted message: %w", err)
	}

	s.broadcaster.Broadcast(data)
	observability.MessagesSubmitted.WithLabelValues("broadcast").Inc()

	if s.publisher != nil {
		// Best-effort: the event bridge never affects the broadcast path.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := s.publisher.PublishMessage(pubCtx, msg); err != nil {
			slog.Error("failed to publish message event",
				slog.String("error", err.Error()),
				slog.String("message_id", msg.ID))
		}
		cancel()
	}

	return msg, nil
}

// History returns the full ordered replay of persisted messages
func (s *RelayService) History(ctx context.Context) ([]*domain.Message, error) {
	return s.store.ListAll(ctx)
}
