// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the chat-relay application.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-relay/internal/domain"
)

// MockMessageStore implements domain.MessageStore for testing
type MockMessageStore struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	AppendFunc  func(ctx context.Context, message *domain.Message) error
	ListAllFunc func(ctx context.Context) ([]*domain.Message, error)

	// In-memory log for simple tests
	Messages []*domain.Message
}

// NewMockMessageStore creates a new MockMessageStore
func NewMockMessageStore() *MockMessageStore {
	return &MockMessageStore{}
}

func (m *MockMessageStore) Append(ctx context.Context, message *domain.Message) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if message.ID == "" {
		message.ID = fmt.Sprintf("msg-%d", len(m.Messages)+1)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	m.Messages = append(m.Messages, message)
	return nil
}

func (m *MockMessageStore) ListAll(ctx context.Context) ([]*domain.Message, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Message, len(m.Messages))
	copy(out, m.Messages)
	return out, nil
}

// Len returns the number of stored messages
func (m *MockMessageStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Messages)
}

// MockBroadcaster implements service.Broadcaster and records every frame
type MockBroadcaster struct {
	mu     sync.Mutex
	Frames [][]byte
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) Broadcast(message []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames = append(m.Frames, message)
}

// Sent returns a copy of the recorded frames
func (m *MockBroadcaster) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.Frames))
	copy(out, m.Frames)
	return out
}

// MockEventPublisher implements service.EventPublisher for testing
type MockEventPublisher struct {
	mu sync.Mutex

	PublishFunc func(ctx context.Context, msg *domain.Message) error

	Published []*domain.Message
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishMessage(ctx context.Context, msg *domain.Message) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, msg)
	return nil
}
