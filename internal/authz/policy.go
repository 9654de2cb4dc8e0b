package authz

import (
	"context"
	"time"

	"github.com/palaver-chat/apiserver/types"
)

// EditWindow is how long after creation an owner may still edit content.
const EditWindow = 10 * time.Minute

// Policy names an ordered composition of guards for a common operation.
type Policy string

const (
	PolicyPostMessage   Policy = "post_message"
	PolicyEditMessage   Policy = "edit_message"
	PolicyDeleteMessage Policy = "delete_message"
	PolicyModerate      Policy = "moderate"
)

// Request carries every input a guard may read. Guards ignore the fields
// they do not use.
type Request struct {
	Identity        types.Identity
	ChannelID       int
	ResourceOwnerID int
	CreatedAt       time.Time
	Window          time.Duration
	MinRole         types.Role
}

var policies = map[Policy][]Guard{
	PolicyPostMessage: {
		GuardNotSuspended,
		GuardChannelMembership,
		GuardChannelUnlockedOrOverridden,
	},
	PolicyEditMessage: {
		GuardNotSuspended,
		GuardOwnership,
		GuardWithinWindow,
		GuardChannelUnlockedOrOverridden,
	},
	PolicyModerate: {
		GuardNotSuspended,
		GuardRoleAtLeast,
	},
}

// Check runs a single named guard against req.
func (e *Evaluator) Check(ctx context.Context, guard Guard, req Request) error {
	switch guard {
	case GuardAuthenticated:
		if req.Identity.UserID == 0 {
			return deny(GuardAuthenticated, ErrUnauthenticated)
		}
		return nil
	case GuardRoleAtLeast:
		if !req.MinRole.Valid() {
			return Validation("min_role is required")
		}
		return RequireRoleAtLeast(req.Identity, req.MinRole)
	case GuardChannelMembership:
		if req.ChannelID == 0 {
			return Validation("channel_id is required")
		}
		return e.RequireChannelMembership(ctx, req.Identity, req.ChannelID)
	case GuardChannelUnlockedOrOverridden:
		if req.ChannelID == 0 {
			return Validation("channel_id is required")
		}
		return e.RequireChannelUnlockedOrOverridden(ctx, req.Identity, req.ChannelID)
	case GuardOwnership:
		if req.ResourceOwnerID == 0 {
			return Validation("resource_owner_id is required")
		}
		return RequireOwnership(req.Identity.UserID, req.ResourceOwnerID)
	case GuardWithinWindow:
		if req.CreatedAt.IsZero() {
			return Validation("created_at is required")
		}
		window := req.Window
		if window <= 0 {
			window = EditWindow
		}
		return e.RequireWithinWindow(req.CreatedAt, window)
	case GuardNotSuspended:
		return RequireNotSuspended(req.Identity)
	default:
		return Validation("unknown guard " + string(guard))
	}
}

// Enforce runs guards in order and stops at the first failure.
func (e *Evaluator) Enforce(ctx context.Context, req Request, guards ...Guard) error {
	for _, guard := range guards {
		if err := e.Check(ctx, guard, req); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate is the guard surface offered to business-logic callers. name is
// either a single guard or a named policy.
func (e *Evaluator) Evaluate(ctx context.Context, name string, req Request) error {
	policy := Policy(name)
	switch policy {
	case PolicyDeleteMessage:
		return e.deleteMessage(ctx, req)
	case PolicyModerate:
		if !req.MinRole.Valid() {
			req.MinRole = types.RoleModerator
		}
	}
	if guards, ok := policies[policy]; ok {
		return e.Enforce(ctx, req, guards...)
	}
	return e.Check(ctx, Guard(name), req)
}

// deleteMessage lets owners remove their own content and moderators remove
// anyone's.
func (e *Evaluator) deleteMessage(ctx context.Context, req Request) error {
	if err := e.Check(ctx, GuardNotSuspended, req); err != nil {
		return err
	}
	if req.Identity.Role.AtLeast(types.RoleModerator) {
		return nil
	}
	return e.Check(ctx, GuardOwnership, req)
}
