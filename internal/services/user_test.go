package services

import (
	"context"
	"testing"

	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAlwaysStartsAsPlainUser(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t)
	users := NewUserService(env.store.Users)

	user, err := users.Create(context.Background(), types.User{Username: "mallory", Role: types.RoleAdmin, Suspended: true})
	require.NoError(t, err)
	assert.Equal(types.RoleUser, user.Role)
	assert.False(user.Suspended)

	_, err = users.Create(context.Background(), types.User{Username: "Mallory"})
	assert.ErrorIs(err, store.ErrConflict)
}

func TestPromote(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	users := NewUserService(env.store.Users)

	user, err := users.Promote(ctx, "alice", types.RoleModerator)
	require.NoError(t, err)
	assert.Equal(types.RoleModerator, user.Role)

	_, err = users.Promote(ctx, "nobody", types.RoleAdmin)
	assert.ErrorIs(err, store.ErrNotFound)
}
