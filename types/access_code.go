package types

import "time"

// AccessCode is a single-use secret bound to one channel and one target
// user. Only the hash of the secret is stored; codes are retained after use.
type AccessCode struct {
	// ID is the unique identifier of the code record.
	ID int64 `json:"id" db:"id"`

	// HashedSecret is the keyed one-way hash of the normalized code.
	HashedSecret string `json:"-" db:"hashed_secret"`

	// ChannelID is the locked channel the code opens.
	ChannelID int `json:"channel_id" db:"channel_id"`

	// TargetUserID is the only user allowed to redeem the code.
	TargetUserID int `json:"target_user_id" db:"target_user_id"`

	// CreatedBy identifies the admin who issued the code.
	CreatedBy int `json:"created_by" db:"created_by"`

	// CreatedAt is the issuance timestamp.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ExpiresAt is the instant after which the code can no longer be redeemed.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// Used is set by the single successful redemption and never reset.
	Used bool `json:"used" db:"used"`

	// UsedAt is the redemption timestamp, if any.
	UsedAt *time.Time `json:"used_at,omitempty" db:"used_at"`
}

// IssuedAccessCode is returned once, at issuance. The plaintext is not
// retrievable afterwards.
type IssuedAccessCode struct {
	Code      string    `json:"code"`
	ChannelID int       `json:"channel_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Redemption is the result of a successful access-code redemption.
type Redemption struct {
	ChannelID int `json:"channel_id"`
}
