package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/palaver-chat/apiserver/types"
)

// MessageRepository is read-only access to chat messages. Messages are
// written by the messaging service, not by this one.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CountByAuthor returns the author's total message count and how many of
// those were soft-deleted.
func (r *MessageRepository) CountByAuthor(ctx context.Context, authorID int) (total, deleted int, err error) {
	const query = `
		SELECT COUNT(1), COUNT(1) FILTER (WHERE deleted)
		FROM messages
		WHERE author_id = $1`
	err = r.db.QueryRowContext(ctx, query, authorID).Scan(&total, &deleted)
	return total, deleted, err
}

// ListByAuthorSince returns the author's messages created after since,
// including soft-deleted ones.
func (r *MessageRepository) ListByAuthorSince(ctx context.Context, authorID int, since time.Time) ([]types.Message, error) {
	const query = `
		SELECT id, channel_id, author_id, content, deleted, created_at
		FROM messages
		WHERE author_id = $1 AND created_at > $2
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, authorID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.Deleted, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
