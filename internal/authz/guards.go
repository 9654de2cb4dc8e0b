// Package authz is the permission evaluator: a set of independent guards
// that each mutating operation composes, in order, before touching its own
// records. Guards fail fast with an *Error and never retry.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/metrics"
	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/types"
)

// Guard names a single permission check.
type Guard string

const (
	GuardAuthenticated               Guard = "authenticated"
	GuardRoleAtLeast                 Guard = "role_at_least"
	GuardChannelMembership           Guard = "channel_membership"
	GuardChannelUnlockedOrOverridden Guard = "channel_unlocked_or_overridden"
	GuardOwnership                   Guard = "ownership"
	GuardWithinWindow                Guard = "within_window"
	GuardNotSuspended                Guard = "not_suspended"
)

// IdentityResolver resolves an opaque session token. Unknown and expired
// tokens both report ok=false; err is reserved for lookup failures.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (identity types.Identity, ok bool, err error)
}

// ChannelReader is the read access to channel records the guards need.
type ChannelReader interface {
	GetLockState(ctx context.Context, channelID int) (types.ChannelLockState, error)
	IsMember(ctx context.Context, channelID, userID int) (bool, error)
	HasOverride(ctx context.Context, channelID, userID int) (bool, error)
}

// Evaluator runs guards that need a session resolver, channel records or
// the current time. Guards over already-resolved values are plain functions.
type Evaluator struct {
	resolver IdentityResolver
	channels ChannelReader
	clock    clock.Clock
}

func NewEvaluator(resolver IdentityResolver, channels ChannelReader, clk clock.Clock) *Evaluator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Evaluator{
		resolver: resolver,
		channels: channels,
		clock:    clk,
	}
}

func deny(guard Guard, err *Error) error {
	metrics.GuardDenials.WithLabelValues(string(guard), string(err.Kind)).Inc()
	return err
}

// RequireAuthenticated resolves the session token into an identity.
func (e *Evaluator) RequireAuthenticated(ctx context.Context, token string) (types.Identity, error) {
	if token == "" || e.resolver == nil {
		return types.Identity{}, deny(GuardAuthenticated, ErrUnauthenticated)
	}
	identity, ok, err := e.resolver.Resolve(ctx, token)
	if err != nil {
		return types.Identity{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return types.Identity{}, deny(GuardAuthenticated, ErrUnauthenticated)
	}
	if !identity.ExpiresAt.IsZero() && !e.clock.Now().Before(identity.ExpiresAt) {
		return types.Identity{}, deny(GuardAuthenticated, ErrUnauthenticated)
	}
	return identity, nil
}

// RequireRoleAtLeast fails Forbidden unless the identity's tier meets the
// threshold. Admin meets every threshold.
func RequireRoleAtLeast(identity types.Identity, threshold types.Role) error {
	if identity.Role.AtLeast(threshold) {
		return nil
	}
	return deny(GuardRoleAtLeast, Forbidden(string(threshold)+" role required"))
}

// RequireChannelMembership fails Forbidden unless the identity belongs to
// the channel. Admins are exempt.
func (e *Evaluator) RequireChannelMembership(ctx context.Context, identity types.Identity, channelID int) error {
	if identity.IsAdmin() {
		return nil
	}
	member, err := e.channels.IsMember(ctx, channelID, identity.UserID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return deny(GuardChannelMembership, Forbidden("not a member of this channel"))
	}
	return nil
}

// RequireChannelUnlockedOrOverridden passes when the channel is unlocked,
// or when it is locked and the identity is an admin or holds an override.
func (e *Evaluator) RequireChannelUnlockedOrOverridden(ctx context.Context, identity types.Identity, channelID int) error {
	state, err := e.channels.GetLockState(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return deny(GuardChannelUnlockedOrOverridden, NotFound("channel not found"))
		}
		return fmt.Errorf("load lock state: %w", err)
	}
	if !state.Locked || identity.IsAdmin() {
		return nil
	}
	overridden, err := e.channels.HasOverride(ctx, channelID, identity.UserID)
	if err != nil {
		return fmt.Errorf("check override: %w", err)
	}
	if overridden {
		return nil
	}
	return deny(GuardChannelUnlockedOrOverridden, ErrChannelLocked)
}

// RequireOwnership fails NotOwner when the actor does not own the resource.
func RequireOwnership(actorID, ownerID int) error {
	if actorID != ownerID {
		return deny(GuardOwnership, ErrNotOwner)
	}
	return nil
}

// RequireWithinWindow fails WindowExpired once more than window has passed
// since createdAt.
func (e *Evaluator) RequireWithinWindow(createdAt time.Time, window time.Duration) error {
	if e.clock.Now().Sub(createdAt) > window {
		return deny(GuardWithinWindow, ErrWindowExpired)
	}
	return nil
}

// RequireNotSuspended fails Suspended for a suspended identity regardless of
// its role. Content-mutating paths evaluate it before any other guard.
func RequireNotSuspended(identity types.Identity) error {
	if identity.Suspended {
		return deny(GuardNotSuspended, ErrSuspended)
	}
	return nil
}
