package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"chat-relay/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ID        string
	Username  string
	Content   string
	CreatedAt time.Time
}

// NewTestMessage creates a test message with sensible defaults.
// Pass options to override specific fields.
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ID:       nextID("msg"),
		Username: fmt.Sprintf("user%d", idCounter.Load()),
		Content:  "hello",
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.Message{
		ID:        o.ID,
		Username:  o.Username,
		Content:   o.Content,
		CreatedAt: o.CreatedAt,
	}
}

// WithUsername sets the message username
func WithUsername(username string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Username = username
	}
}

// WithContent sets the message content
func WithContent(content string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Content = content
	}
}

// WithCreatedAt sets the message timestamp
func WithCreatedAt(t time.Time) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.CreatedAt = t
	}
}
