package store

import (
	"context"
	"database/sql"

	"github.com/palaver-chat/apiserver/types"
)

// ModerationLogRepository is the append-only audit sink. It exposes no
// update or delete.
type ModerationLogRepository struct {
	db *sql.DB
}

func NewModerationLogRepository(db *sql.DB) *ModerationLogRepository {
	return &ModerationLogRepository{db: db}
}

func (r *ModerationLogRepository) Append(ctx context.Context, entry types.ModerationLogEntry) (types.ModerationLogEntry, error) {
	const query = `
		INSERT INTO moderation_log (event_id, action, actor_id, target_user_id, target_channel_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		entry.EventID,
		string(entry.Action),
		entry.ActorID,
		nullInt(entry.TargetUserID),
		nullInt(entry.TargetChannelID),
		nullString(entry.Reason),
		entry.CreatedAt,
	).Scan(&entry.ID); err != nil {
		return types.ModerationLogEntry{}, err
	}
	return entry, nil
}

// List returns up to limit entries, newest first.
func (r *ModerationLogRepository) List(ctx context.Context, limit int) ([]types.ModerationLogEntry, error) {
	const query = `
		SELECT id, event_id, action, actor_id, target_user_id, target_channel_id, reason, created_at
		FROM moderation_log
		ORDER BY id DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.ModerationLogEntry, 0, limit)
	for rows.Next() {
		var (
			entry         types.ModerationLogEntry
			action        string
			targetUser    sql.NullInt64
			targetChannel sql.NullInt64
			reason        sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.EventID,
			&action,
			&entry.ActorID,
			&targetUser,
			&targetChannel,
			&reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Action = types.ModerationAction(action)
		entry.TargetUserID = intPtr(targetUser)
		entry.TargetChannelID = intPtr(targetChannel)
		entry.Reason = reason.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
