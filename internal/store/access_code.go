package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/palaver-chat/apiserver/types"
)

const accessCodeColumns = `id, hashed_secret, channel_id, target_user_id, created_by, created_at, expires_at, used, used_at`

// AccessCodeRepository handles persistence for one-time access codes.
type AccessCodeRepository struct {
	db *sql.DB
}

func NewAccessCodeRepository(db *sql.DB) *AccessCodeRepository {
	return &AccessCodeRepository{db: db}
}

func scanAccessCode(row rowScanner) (types.AccessCode, error) {
	var (
		code   types.AccessCode
		usedAt sql.NullTime
	)
	err := row.Scan(
		&code.ID,
		&code.HashedSecret,
		&code.ChannelID,
		&code.TargetUserID,
		&code.CreatedBy,
		&code.CreatedAt,
		&code.ExpiresAt,
		&code.Used,
		&usedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AccessCode{}, ErrNotFound
		}
		return types.AccessCode{}, err
	}
	if usedAt.Valid {
		at := usedAt.Time
		code.UsedAt = &at
	}
	return code, nil
}

func (r *AccessCodeRepository) Create(ctx context.Context, code types.AccessCode) (types.AccessCode, error) {
	const query = `
		INSERT INTO access_codes (hashed_secret, channel_id, target_user_id, created_by, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		code.HashedSecret,
		code.ChannelID,
		code.TargetUserID,
		code.CreatedBy,
		code.CreatedAt,
		code.ExpiresAt,
	).Scan(&code.ID); err != nil {
		if isUniqueViolation(err) {
			return types.AccessCode{}, ErrConflict
		}
		return types.AccessCode{}, err
	}
	code.Used = false
	return code, nil
}

func (r *AccessCodeRepository) GetByHash(ctx context.Context, hashedSecret string) (types.AccessCode, error) {
	const query = `SELECT ` + accessCodeColumns + ` FROM access_codes WHERE hashed_secret = $1`
	return scanAccessCode(r.db.QueryRowContext(ctx, query, hashedSecret))
}

// Redeem consumes the code for userID in one transaction: the code is
// marked used, a lock override is granted and the user joins the channel.
// It returns ErrConflict if another redemption already consumed the code.
func (r *AccessCodeRepository) Redeem(ctx context.Context, code types.AccessCode, userID int, at time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		const consume = `
			UPDATE access_codes
			SET used = TRUE, used_at = $2
			WHERE id = $1 AND used = FALSE`
		result, err := tx.ExecContext(ctx, consume, code.ID, at)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrConflict
		}

		const grant = `
			INSERT INTO channel_lock_overrides (channel_id, user_id, granted_at, granted_by)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (channel_id, user_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, grant, code.ChannelID, userID, at, code.CreatedBy); err != nil {
			return err
		}

		const join = `
			INSERT INTO channel_members (channel_id, user_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (channel_id, user_id) DO NOTHING`
		_, err = tx.ExecContext(ctx, join, code.ChannelID, userID, at)
		return err
	})
}
