package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/types"
)

// SuspensionService places and lifts community-wide suspensions.
type SuspensionService struct {
	users UserRepository
	audit *AuditLog
	clock clock.Clock
}

func NewSuspensionService(users UserRepository, audit *AuditLog, clk clock.Clock) *SuspensionService {
	if clk == nil {
		clk = clock.Real()
	}
	return &SuspensionService{users: users, audit: audit, clock: clk}
}

func (s *SuspensionService) authorize(actor types.Identity) error {
	if err := authz.RequireNotSuspended(actor); err != nil {
		return err
	}
	return authz.RequireRoleAtLeast(actor, types.RoleModerator)
}

// Suspend suspends the target user. Admins can never be suspended.
func (s *SuspensionService) Suspend(ctx context.Context, actor types.Identity, targetID int, reason string) (types.User, error) {
	if err := s.authorize(actor); err != nil {
		return types.User{}, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > types.MaxSuspendReasonLength {
		return types.User{}, authz.Validation("suspension reason is too long")
	}

	user, err := s.users.Suspend(ctx, targetID, types.Suspension{
		ActorID: actor.UserID,
		Reason:  reason,
		At:      s.clock.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, authz.NotFound("user not found")
		case errors.Is(err, store.ErrProtected):
			return types.User{}, authz.InvalidState("cannot suspend admin")
		case errors.Is(err, store.ErrConflict):
			return types.User{}, authz.InvalidState("already suspended")
		}
		return types.User{}, err
	}

	s.audit.Record(ctx, types.ModerationLogEntry{
		Action:       types.ActionUserSuspended,
		ActorID:      actor.UserID,
		TargetUserID: &user.ID,
		Reason:       reason,
	})
	return user, nil
}

// Unsuspend lifts the target's suspension and clears its metadata.
func (s *SuspensionService) Unsuspend(ctx context.Context, actor types.Identity, targetID int) (types.User, error) {
	if err := s.authorize(actor); err != nil {
		return types.User{}, err
	}

	user, err := s.users.Unsuspend(ctx, targetID, s.clock.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, authz.NotFound("user not found")
		case errors.Is(err, store.ErrConflict):
			return types.User{}, authz.InvalidState("not suspended")
		}
		return types.User{}, err
	}

	s.audit.Record(ctx, types.ModerationLogEntry{
		Action:       types.ActionUserUnsuspended,
		ActorID:      actor.UserID,
		TargetUserID: &user.ID,
	})
	return user, nil
}
