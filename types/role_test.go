package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleAtLeast(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		role      Role
		threshold Role
		want      bool
	}{
		{RoleUser, RoleUser, true},
		{RoleUser, RoleModerator, false},
		{RoleUser, RoleAdmin, false},
		{RoleModerator, RoleUser, true},
		{RoleModerator, RoleModerator, true},
		{RoleModerator, RoleAdmin, false},
		{RoleAdmin, RoleUser, true},
		{RoleAdmin, RoleModerator, true},
		{RoleAdmin, RoleAdmin, true},
		{Role("owner"), RoleUser, false},
		{RoleAdmin, Role(""), false},
	}
	for _, c := range cases {
		assert.Equal(c.want, c.role.AtLeast(c.threshold), "%q >= %q", c.role, c.threshold)
	}
}

func TestParseRoleLegacySpellings(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(RoleAdmin, ParseRole("admin"))
	assert.Equal(RoleAdmin, ParseRole(" Administrator "))
	assert.Equal(RoleAdmin, ParseRole("superuser"))
	assert.Equal(RoleModerator, ParseRole("mod"))
	assert.Equal(RoleModerator, ParseRole("MODERATOR"))
	assert.Equal(RoleUser, ParseRole(""))
	assert.Equal(RoleUser, ParseRole("guest"))
}

func TestRoleFromLegacy(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(RoleAdmin, RoleFromLegacy("user", true))
	assert.Equal(RoleAdmin, RoleFromLegacy("mod", true))
	assert.Equal(RoleModerator, RoleFromLegacy("mod", false))
	assert.Equal(RoleUser, RoleFromLegacy("", false))
}
