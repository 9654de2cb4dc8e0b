package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuspendAndUnsuspend(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	mod := env.identity(t, env.moderator)

	user, err := env.suspensions.Suspend(ctx, mod, env.alice.ID, "spam")
	require.NoError(t, err)
	assert.True(user.Suspended)
	assert.Equal("spam", user.SuspendReason)
	require.NotNil(t, user.SuspendedBy)
	assert.Equal(env.moderator.ID, *user.SuspendedBy)

	entries := env.logEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(types.ActionUserSuspended, entries[0].Action)
	assert.Equal(env.moderator.ID, entries[0].ActorID)
	require.NotNil(t, entries[0].TargetUserID)
	assert.Equal(env.alice.ID, *entries[0].TargetUserID)
	assert.Equal("spam", entries[0].Reason)

	// a suspended identity is refused everywhere
	assert.ErrorIs(authz.RequireNotSuspended(env.identity(t, env.alice)), authz.ErrSuspended)

	user, err = env.suspensions.Unsuspend(ctx, mod, env.alice.ID)
	require.NoError(t, err)
	assert.False(user.Suspended)
	assert.Nil(user.SuspendedAt)
	assert.Nil(user.SuspendedBy)
	assert.Empty(user.SuspendReason)
	assert.Len(env.logEntries(t), 2)
}

func TestSuspendRefusals(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	mod := env.identity(t, env.moderator)

	_, err := env.suspensions.Suspend(ctx, env.identity(t, env.bob), env.alice.ID, "")
	assert.ErrorIs(err, authz.ErrForbidden)

	_, err = env.suspensions.Suspend(ctx, mod, env.admin.ID, "")
	assert.ErrorIs(err, authz.InvalidState("cannot suspend admin"))
	_, err = env.suspensions.Suspend(ctx, env.identity(t, env.admin), env.admin.ID, "")
	assert.ErrorIs(err, authz.InvalidState("cannot suspend admin"))

	_, err = env.suspensions.Suspend(ctx, mod, 404, "")
	assert.ErrorIs(err, authz.NotFound("user not found"))

	_, err = env.suspensions.Suspend(ctx, mod, env.alice.ID, strings.Repeat("x", types.MaxSuspendReasonLength+1))
	assert.ErrorIs(err, authz.ErrValidation)

	_, err = env.suspensions.Unsuspend(ctx, mod, env.alice.ID)
	assert.ErrorIs(err, authz.InvalidState("not suspended"))

	_, err = env.suspensions.Suspend(ctx, mod, env.alice.ID, "")
	require.NoError(t, err)
	_, err = env.suspensions.Suspend(ctx, mod, env.alice.ID, "")
	assert.ErrorIs(err, authz.InvalidState("already suspended"))

	assert.Len(env.logEntries(t), 1, "only the successful suspension is audited")
}

func TestSuspendedModeratorCannotModerate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.suspensions.Suspend(ctx, env.identity(t, env.admin), env.moderator.ID, "")
	require.NoError(t, err)

	_, err = env.suspensions.Suspend(ctx, env.identity(t, env.moderator), env.alice.ID, "")
	assert.ErrorIs(t, err, authz.ErrSuspended)
}

func TestConcurrentSuspendHasOneWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mod := env.identity(t, env.moderator)

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.suspensions.Suspend(ctx, mod, env.alice.ID, "flood"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Len(t, env.logEntries(t), 1)
}
