package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/observability"
)

// MessageRepository implements domain.MessageStore for PostgreSQL
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts a new message into the log. The database assigns the record
// ID and creation timestamp; both are written back into message.
func (r *MessageRepository) Append(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (username, content)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	start := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		message.Username,
		message.Content,
	).Scan(&message.ID, &message.CreatedAt)
	observability.DBQueryDuration.WithLabelValues("insert", "messages").Observe(time.Since(start).Seconds())

	if err != nil {
		if IsConnectionError(err) {
			slog.Warn("postgres connection lost during append", slog.String("error", err.Error()))
		}
		return storageErr("failed to append message", err)
	}
	return nil
}

// ListAll retrieves every persisted message, oldest first. History replay has
// full-table scan semantics: no pagination, no filtering.
func (r *MessageRepository) ListAll(ctx context.Context) ([]*domain.Message, error) {
	query := `
		SELECT id, username, content, created_at
		FROM messages
		ORDER BY created_at ASC
	`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query)
	observability.DBQueryDuration.WithLabelValues("select", "messages").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, storageErr("failed to query messages", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg := &domain.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.Username,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, storageErr("failed to scan message", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating messages", err)
	}

	return messages, nil
}
