package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStorageUnavailable indicates the backing store could not be reached
	// or failed while serving a request.
	ErrStorageUnavailable = errors.New("message store unavailable")

	// ErrPersistenceFailed indicates a specific append failed. The triggering
	// submission is dropped and nothing is broadcast.
	ErrPersistenceFailed = errors.New("message persistence failed")
)

// Message represents a single chat message. Messages are immutable once
// persisted; CreatedAt is assigned by the store and is the sole ordering key
// for history retrieval.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// MessageStore defines the interface for the append-only message log
type MessageStore interface {
	// Append persists one record and fills in the server-assigned ID and
	// CreatedAt. Failures match ErrStorageUnavailable.
	Append(ctx context.Context, message *Message) error

	// ListAll returns every persisted message ordered ascending by
	// CreatedAt, oldest first. Failures match ErrStorageUnavailable.
	ListAll(ctx context.Context) ([]*Message, error)
}
