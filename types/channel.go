package types

import "time"

// MaxLockReasonLength bounds the free-text reason recorded with a lock.
const MaxLockReasonLength = 120

// Channel is a chat channel as far as the access-control core sees it.
type Channel struct {
	// ID is the unique identifier of the channel.
	ID int `json:"id" db:"id"`

	// Name is the channel's display name.
	Name string `json:"name" db:"name"`

	// Lock is the channel's current lock state. One per channel,
	// overwritten in place.
	Lock ChannelLockState `json:"lock"`

	// CreatedAt is the timestamp when the channel was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ChannelLockState is the lock record attached to a channel. A channel is
// created unlocked; lock metadata is cleared on unlock.
type ChannelLockState struct {
	Locked   bool       `json:"locked" db:"locked"`
	LockedBy *int       `json:"locked_by,omitempty" db:"locked_by"`
	LockedAt *time.Time `json:"locked_at,omitempty" db:"locked_at"`
	Reason   string     `json:"reason,omitempty" db:"lock_reason"`
}

// LockAction names a lock-history transition.
type LockAction string

const (
	LockActionLock   LockAction = "lock"
	LockActionUnlock LockAction = "unlock"
)

// LockHistoryEntry records one lock or unlock transition of a channel.
type LockHistoryEntry struct {
	ID        int64      `json:"id" db:"id"`
	ChannelID int        `json:"channel_id" db:"channel_id"`
	Action    LockAction `json:"action" db:"action"`
	ActorID   int        `json:"actor_id" db:"actor_id"`
	Reason    string     `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// LockOverride relaxes a channel lock for exactly one user. Overrides are
// never persisted for admins and never expire once granted.
type LockOverride struct {
	ChannelID int       `json:"channel_id" db:"channel_id"`
	UserID    int       `json:"user_id" db:"user_id"`
	GrantedAt time.Time `json:"granted_at" db:"granted_at"`
	GrantedBy int       `json:"granted_by" db:"granted_by"`
}
