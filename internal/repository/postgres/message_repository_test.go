package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"chat-relay/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	appendQuery = `
		INSERT INTO messages (username, content)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	listAllQuery = `
		SELECT id, username, content, created_at
		FROM messages
		ORDER BY created_at ASC
	`
)

func TestMessageRepository_Append(t *testing.T) {
	t.Run("successful_append", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		messageID := "a3e7a0a4-9f30-4f3c-9b6c-2f6f2c6e1f10"
		createdAt := time.Now()

		mock.ExpectQuery(regexp.QuoteMeta(appendQuery)).
			WithArgs("alice", "hi").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
				AddRow(messageID, createdAt))

		message := &domain.Message{
			Username: "alice",
			Content:  "hi",
		}

		err = repo.Append(context.Background(), message)
		require.NoError(t, err)
		assert.Equal(t, messageID, message.ID)
		assert.Equal(t, createdAt, message.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_fields_are_legal", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(appendQuery)).
			WithArgs("", "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
				AddRow("msg-1", time.Now()))

		err = repo.Append(context.Background(), &domain.Message{})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("backend_failure_is_storage_unavailable", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(appendQuery)).
			WithArgs("alice", "hi").
			WillReturnError(errors.New("connection refused"))

		err = repo.Append(context.Background(), &domain.Message{Username: "alice", Content: "hi"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.Contains(t, err.Error(), "failed to append message")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMessageRepository_ListAll(t *testing.T) {
	t.Run("returns_messages_oldest_first", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		base := time.Now().Add(-time.Hour)
		rows := sqlmock.NewRows([]string{"id", "username", "content", "created_at"}).
			AddRow("msg-1", "alice", "hi", base).
			AddRow("msg-2", "bob", "hello", base.Add(time.Minute)).
			AddRow("msg-3", "alice", "bye", base.Add(2*time.Minute))

		mock.ExpectQuery(regexp.QuoteMeta(listAllQuery)).WillReturnRows(rows)

		messages, err := repo.ListAll(context.Background())
		require.NoError(t, err)
		require.Len(t, messages, 3)

		assert.Equal(t, "msg-1", messages[0].ID)
		assert.Equal(t, "alice", messages[0].Username)
		assert.Equal(t, "hi", messages[0].Content)

		for i := 1; i < len(messages); i++ {
			assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
				"messages must be in non-decreasing timestamp order")
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_history_returns_empty_slice", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(listAllQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "content", "created_at"}))

		messages, err := repo.ListAll(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, messages)
		assert.Empty(t, messages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_failure_is_storage_unavailable", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(listAllQuery)).
			WillReturnError(errors.New("server closed the connection"))

		messages, err := repo.ListAll(context.Background())
		require.Error(t, err)
		assert.Nil(t, messages)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scan_failure_is_storage_unavailable", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		rows := sqlmock.NewRows([]string{"id", "username", "content", "created_at"}).
			AddRow("msg-1", "alice", "hi", "not-a-timestamp")

		mock.ExpectQuery(regexp.QuoteMeta(listAllQuery)).WillReturnRows(rows)

		messages, err := repo.ListAll(context.Background())
		require.Error(t, err)
		assert.Nil(t, messages)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	})
}
