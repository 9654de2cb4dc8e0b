package types

import "time"

// User represents an account in the community.
// It contains identity, role, standing, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Role is the user's trust tier. Admin satisfies every lower tier.
	Role Role `json:"role" db:"role"`

	// Suspended reports whether the user's standing is revoked
	// community-wide. Admin accounts are never suspended.
	Suspended bool `json:"suspended" db:"suspended"`

	// SuspendedAt is when the current suspension started.
	SuspendedAt *time.Time `json:"suspended_at,omitempty" db:"suspended_at"`

	// SuspendedBy identifies the moderator who applied the current suspension.
	SuspendedBy *int `json:"suspended_by,omitempty" db:"suspended_by"`

	// SuspendReason is the free-text reason recorded with the suspension.
	SuspendReason string `json:"suspend_reason,omitempty" db:"suspend_reason"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the name shown next to the user's actions.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Identity projects the user into the resolved identity evaluated by guards.
func (u User) Identity(expiresAt time.Time) Identity {
	return Identity{
		UserID:    u.ID,
		Role:      u.Role,
		Suspended: u.Suspended,
		CreatedAt: u.CreatedAt,
		ExpiresAt: expiresAt,
	}
}

// Identity is the result of resolving a session: who is acting and with
// which standing. It is the only user view the guards reason about.
type Identity struct {
	UserID    int       `json:"user_id"`
	Role      Role      `json:"role"`
	Suspended bool      `json:"suspended"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAdmin reports whether the identity holds the Admin tier.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Suspension describes a suspension being applied to a user.
type Suspension struct {
	ActorID int
	Reason  string
	At      time.Time
}
