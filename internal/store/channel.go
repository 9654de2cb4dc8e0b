package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/palaver-chat/apiserver/types"
)

const channelColumns = `id, name, locked, locked_by, locked_at, lock_reason, created_at`

// ChannelRepository handles lock state, membership and lock overrides.
type ChannelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func scanChannel(row rowScanner) (types.Channel, error) {
	var (
		channel  types.Channel
		lockedBy sql.NullInt64
		lockedAt sql.NullTime
		reason   sql.NullString
	)
	err := row.Scan(
		&channel.ID,
		&channel.Name,
		&channel.Lock.Locked,
		&lockedBy,
		&lockedAt,
		&reason,
		&channel.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Channel{}, ErrNotFound
		}
		return types.Channel{}, err
	}
	channel.Lock.LockedBy = intPtr(lockedBy)
	if lockedAt.Valid {
		at := lockedAt.Time
		channel.Lock.LockedAt = &at
	}
	channel.Lock.Reason = reason.String
	return channel, nil
}

func (r *ChannelRepository) Create(ctx context.Context, name string) (types.Channel, error) {
	const query = `
		INSERT INTO channels (name, created_at)
		VALUES ($1, $2)
		RETURNING ` + channelColumns
	return scanChannel(r.db.QueryRowContext(ctx, query, name, time.Now()))
}

func (r *ChannelRepository) Get(ctx context.Context, id int) (types.Channel, error) {
	const query = `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`
	return scanChannel(r.db.QueryRowContext(ctx, query, id))
}

func (r *ChannelRepository) GetLockState(ctx context.Context, id int) (types.ChannelLockState, error) {
	channel, err := r.Get(ctx, id)
	if err != nil {
		return types.ChannelLockState{}, err
	}
	return channel.Lock, nil
}

// Lock moves the channel from unlocked to locked and records the
// transition in the lock history. It returns ErrConflict when the channel
// is already locked.
func (r *ChannelRepository) Lock(ctx context.Context, id, actorID int, reason string, at time.Time) (types.Channel, error) {
	const update = `
		UPDATE channels
		SET locked = TRUE, locked_by = $2, locked_at = $3, lock_reason = $4
		WHERE id = $1 AND locked = FALSE
		RETURNING ` + channelColumns
	return r.transition(ctx, id, types.LockActionLock, actorID, reason, at, update, id, actorID, at, nullString(reason))
}

// Unlock moves the channel from locked to unlocked, clearing lock metadata.
// It returns ErrConflict when the channel is not locked.
func (r *ChannelRepository) Unlock(ctx context.Context, id, actorID int, at time.Time) (types.Channel, error) {
	const update = `
		UPDATE channels
		SET locked = FALSE, locked_by = NULL, locked_at = NULL, lock_reason = NULL
		WHERE id = $1 AND locked = TRUE
		RETURNING ` + channelColumns
	return r.transition(ctx, id, types.LockActionUnlock, actorID, "", at, update, id)
}

func (r *ChannelRepository) transition(
	ctx context.Context,
	id int,
	action types.LockAction,
	actorID int,
	reason string,
	at time.Time,
	update string,
	args ...any,
) (types.Channel, error) {
	var channel types.Channel
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		channel, err = scanChannel(tx.QueryRowContext(ctx, update, args...))
		if errors.Is(err, ErrNotFound) {
			if _, getErr := scanChannel(tx.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)); getErr != nil {
				return getErr
			}
			return ErrConflict
		}
		if err != nil {
			return err
		}

		const history = `
			INSERT INTO channel_lock_history (channel_id, action, actor_id, reason, created_at)
			VALUES ($1, $2, $3, $4, $5)`
		_, err = tx.ExecContext(ctx, history, id, string(action), actorID, nullString(reason), at)
		return err
	})
	if err != nil {
		return types.Channel{}, err
	}
	return channel, nil
}

// ListLockHistory returns the newest transitions first.
func (r *ChannelRepository) ListLockHistory(ctx context.Context, channelID, limit int) ([]types.LockHistoryEntry, error) {
	const query = `
		SELECT id, channel_id, action, actor_id, reason, created_at
		FROM channel_lock_history
		WHERE channel_id = $1
		ORDER BY id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.LockHistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry  types.LockHistoryEntry
			action string
			reason sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.ChannelID, &action, &entry.ActorID, &reason, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Action = types.LockAction(action)
		entry.Reason = reason.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ChannelRepository) IsMember(ctx context.Context, channelID, userID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, channelID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// AddMember records membership; an existing membership is left untouched.
func (r *ChannelRepository) AddMember(ctx context.Context, channelID, userID int) error {
	const query = `
		INSERT INTO channel_members (channel_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id, user_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, channelID, userID, time.Now())
	return err
}

func (r *ChannelRepository) HasOverride(ctx context.Context, channelID, userID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM channel_lock_overrides WHERE channel_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, channelID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListOverrides returns every override granted on the channel.
func (r *ChannelRepository) ListOverrides(ctx context.Context, channelID int) ([]types.LockOverride, error) {
	const query = `
		SELECT channel_id, user_id, granted_at, granted_by
		FROM channel_lock_overrides
		WHERE channel_id = $1
		ORDER BY granted_at`
	rows, err := r.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []types.LockOverride
	for rows.Next() {
		var o types.LockOverride
		if err := rows.Scan(&o.ChannelID, &o.UserID, &o.GrantedAt, &o.GrantedBy); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}
