package types

import "strings"

// Role is an ordered trust tier: RoleUser < RoleModerator < RoleAdmin.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleModerator:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the known tiers.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r meets the threshold by lattice comparison.
// Unknown roles satisfy nothing.
func (r Role) AtLeast(threshold Role) bool {
	if !r.Valid() || !threshold.Valid() {
		return false
	}
	return r.rank() >= threshold.rank()
}

// ParseRole maps stored role strings, including legacy spellings, onto the
// ordered enum. Unrecognized values fall back to RoleUser.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin", "administrator", "superuser":
		return RoleAdmin
	case "moderator", "mod":
		return RoleModerator
	default:
		return RoleUser
	}
}

// RoleFromLegacy collapses the legacy boolean admin flag and the role
// column into a single tier. Either signal is enough to grant Admin.
func RoleFromLegacy(role string, isAdmin bool) Role {
	if isAdmin {
		return RoleAdmin
	}
	return ParseRole(role)
}
