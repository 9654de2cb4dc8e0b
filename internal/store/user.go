package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/palaver-chat/apiserver/types"
)

const userColumns = `id, username, email, name, role, suspended, suspended_at, suspended_by, suspend_reason, password_hash, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user        types.User
		role        string
		suspendedAt sql.NullTime
		suspendedBy sql.NullInt64
		reason      sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&role,
		&user.Suspended,
		&suspendedAt,
		&suspendedBy,
		&reason,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.Role = types.ParseRole(role)
	if suspendedAt.Valid {
		at := suspendedAt.Time
		user.SuspendedAt = &at
	}
	user.SuspendedBy = intPtr(suspendedBy)
	user.SuspendReason = reason.String
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

// List returns every user ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if !user.Role.Valid() {
		user.Role = types.RoleUser
	}

	const query = `
		INSERT INTO users (username, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Name,
		string(user.Role),
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// SetRole changes a user's tier. Role management itself lives outside the
// moderation core; this exists for bootstrapping the first admin.
func (r *UserRepository) SetRole(ctx context.Context, id int, role types.Role) (types.User, error) {
	const query = `
		UPDATE users
		SET role = $1,
			suspended = CASE WHEN $1 = 'admin' THEN FALSE ELSE suspended END,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, string(role), time.Now(), id))
}

// Suspend sets the suspended flag if it is not already set. It returns
// ErrProtected for admins and ErrConflict when already suspended.
func (r *UserRepository) Suspend(ctx context.Context, id int, s types.Suspension) (types.User, error) {
	const query = `
		UPDATE users
		SET suspended = TRUE,
			suspended_at = $2,
			suspended_by = $3,
			suspend_reason = $4,
			updated_at = $2
		WHERE id = $1 AND suspended = FALSE AND role <> 'admin'
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id, s.At, s.ActorID, nullString(s.Reason)))
	if !errors.Is(err, ErrNotFound) {
		return user, err
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if current.Role == types.RoleAdmin {
		return types.User{}, ErrProtected
	}
	return types.User{}, ErrConflict
}

// Unsuspend clears the suspended flag. It returns ErrConflict when the
// user is not suspended.
func (r *UserRepository) Unsuspend(ctx context.Context, id int, at time.Time) (types.User, error) {
	const query = `
		UPDATE users
		SET suspended = FALSE,
			suspended_at = NULL,
			suspended_by = NULL,
			suspend_reason = NULL,
			updated_at = $2
		WHERE id = $1 AND suspended = TRUE
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id, at))
	if !errors.Is(err, ErrNotFound) {
		return user, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return types.User{}, err
	}
	return types.User{}, ErrConflict
}
