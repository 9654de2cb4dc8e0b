package types

import "time"

// MaxSuspendReasonLength bounds the free-text reason recorded with a suspension.
const MaxSuspendReasonLength = 500

// ModerationAction is the closed set of control-plane changes recorded in
// the audit log.
type ModerationAction string

const (
	ActionChannelLocked      ModerationAction = "channel_locked"
	ActionChannelUnlocked    ModerationAction = "channel_unlocked"
	ActionUserSuspended      ModerationAction = "user_suspended"
	ActionUserUnsuspended    ModerationAction = "user_unsuspended"
	ActionAccessCodeIssued   ModerationAction = "access_code_issued"
	ActionAccessCodeRedeemed ModerationAction = "access_code_redeemed"
)

// Valid reports whether a is a known action kind.
func (a ModerationAction) Valid() bool {
	switch a {
	case ActionChannelLocked, ActionChannelUnlocked,
		ActionUserSuspended, ActionUserUnsuspended,
		ActionAccessCodeIssued, ActionAccessCodeRedeemed:
		return true
	}
	return false
}

// ModerationLogEntry is an immutable audit record of a control decision.
type ModerationLogEntry struct {
	// ID is the store-assigned sequence number.
	ID int64 `json:"id" db:"id"`

	// EventID is a globally unique id carried to event subscribers.
	EventID string `json:"event_id" db:"event_id"`

	// Action is the kind of change that was made.
	Action ModerationAction `json:"action" db:"action"`

	// ActorID identifies who made the change.
	ActorID int `json:"actor_id" db:"actor_id"`

	// TargetUserID identifies the affected user, when there is one.
	TargetUserID *int `json:"target_user_id,omitempty" db:"target_user_id"`

	// TargetChannelID identifies the affected channel, when there is one.
	TargetChannelID *int `json:"target_channel_id,omitempty" db:"target_channel_id"`

	// Reason is the optional free-text reason given by the actor.
	Reason string `json:"reason,omitempty" db:"reason"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"timestamp" db:"created_at"`

	// ActorName and TargetName are presentation-only enrichment filled in
	// by readers. They are never persisted.
	ActorName  string `json:"actor_name,omitempty" db:"-"`
	TargetName string `json:"target_name,omitempty" db:"-"`
}
