package authz

import (
	"context"
	"testing"
	"time"

	"github.com/palaver-chat/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMessagePolicy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.store.Channels.AddMember(ctx, f.channelID, 2))
	member := identity(2, types.RoleUser)
	req := Request{Identity: member, ChannelID: f.channelID}

	assert.NoError(f.evaluator.Evaluate(ctx, string(PolicyPostMessage), req))

	req.Identity = identity(3, types.RoleUser)
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyPostMessage), req), ErrForbidden)

	_, err := f.store.Channels.Lock(ctx, f.channelID, 1, "", testNow)
	require.NoError(t, err)
	req.Identity = member
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyPostMessage), req), ErrChannelLocked)

	// suspension wins over every other refusal
	req.Identity.Suspended = true
	req.ChannelID = f.channelID
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyPostMessage), req), ErrSuspended)
}

func TestEditMessagePolicyOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	owner := identity(2, types.RoleUser)
	req := Request{
		Identity:        owner,
		ChannelID:       f.channelID,
		ResourceOwnerID: 2,
		CreatedAt:       testNow.Add(-5 * time.Minute),
	}
	assert.NoError(f.evaluator.Evaluate(ctx, string(PolicyEditMessage), req))

	req.ResourceOwnerID = 9
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyEditMessage), req), ErrNotOwner)

	req.ResourceOwnerID = 2
	req.CreatedAt = testNow.Add(-11 * time.Minute)
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyEditMessage), req), ErrWindowExpired)

	req.CreatedAt = testNow.Add(-20 * time.Minute)
	req.Window = 30 * time.Minute
	assert.NoError(f.evaluator.Evaluate(ctx, string(PolicyEditMessage), req))
}

func TestDeleteMessagePolicy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	req := Request{Identity: identity(2, types.RoleUser), ResourceOwnerID: 2}
	assert.NoError(f.evaluator.Evaluate(ctx, string(PolicyDeleteMessage), req))

	req.ResourceOwnerID = 5
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyDeleteMessage), req), ErrNotOwner)

	req.Identity = identity(3, types.RoleModerator)
	assert.NoError(f.evaluator.Evaluate(ctx, string(PolicyDeleteMessage), req))

	req.Identity.Suspended = true
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyDeleteMessage), req), ErrSuspended)
}

func TestModeratePolicyDefaultsToModerator(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	assert.NoError(f.evaluator.Evaluate(ctx, string(PolicyModerate), Request{Identity: identity(1, types.RoleModerator)}))
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyModerate), Request{Identity: identity(1, types.RoleUser)}), ErrForbidden)
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(PolicyModerate), Request{
		Identity: identity(1, types.RoleModerator),
		MinRole:  types.RoleAdmin,
	}), ErrForbidden)
}

func TestEvaluateSingleGuardAndValidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	admin := identity(1, types.RoleAdmin)
	assert.NoError(f.evaluator.Evaluate(ctx, string(GuardRoleAtLeast), Request{Identity: admin, MinRole: types.RoleAdmin}))
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(GuardRoleAtLeast), Request{Identity: admin}), ErrValidation)
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(GuardChannelMembership), Request{Identity: admin}), ErrValidation)
	assert.ErrorIs(f.evaluator.Evaluate(ctx, string(GuardWithinWindow), Request{Identity: admin}), ErrValidation)
	assert.ErrorIs(f.evaluator.Evaluate(ctx, "launch_rockets", Request{Identity: admin}), ErrValidation)
}
