package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ChannelRepository defines persistence operations for channels, their
// lock state and the lock overrides.
type ChannelRepository interface {
	Get(ctx context.Context, id int) (types.Channel, error)
	GetLockState(ctx context.Context, id int) (types.ChannelLockState, error)
	Lock(ctx context.Context, id, actorID int, reason string, at time.Time) (types.Channel, error)
	Unlock(ctx context.Context, id, actorID int, at time.Time) (types.Channel, error)
	ListLockHistory(ctx context.Context, channelID, limit int) ([]types.LockHistoryEntry, error)
	IsMember(ctx context.Context, channelID, userID int) (bool, error)
	HasOverride(ctx context.Context, channelID, userID int) (bool, error)
}

// ChannelLockService toggles the per-channel lock.
type ChannelLockService struct {
	repo  ChannelRepository
	audit *AuditLog
	clock clock.Clock
}

func NewChannelLockService(repo ChannelRepository, audit *AuditLog, clk clock.Clock) *ChannelLockService {
	if clk == nil {
		clk = clock.Real()
	}
	return &ChannelLockService{repo: repo, audit: audit, clock: clk}
}

// Lock transitions the channel to locked. Only admins may lock, and a
// channel that is already locked is left untouched.
func (s *ChannelLockService) Lock(ctx context.Context, actor types.Identity, channelID int, reason string) (types.Channel, error) {
	if err := authz.RequireRoleAtLeast(actor, types.RoleAdmin); err != nil {
		return types.Channel{}, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > types.MaxLockReasonLength {
		return types.Channel{}, authz.Validation("lock reason is too long")
	}

	channel, err := s.repo.Lock(ctx, channelID, actor.UserID, reason, s.clock.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return types.Channel{}, authz.NotFound("channel not found")
		case errors.Is(err, store.ErrConflict):
			return types.Channel{}, authz.InvalidState("already locked")
		}
		return types.Channel{}, err
	}

	s.audit.Record(ctx, types.ModerationLogEntry{
		Action:          types.ActionChannelLocked,
		ActorID:         actor.UserID,
		TargetChannelID: &channel.ID,
		Reason:          reason,
	})
	return channel, nil
}

// Unlock transitions the channel to unlocked, clearing the lock metadata.
func (s *ChannelLockService) Unlock(ctx context.Context, actor types.Identity, channelID int) (types.Channel, error) {
	if err := authz.RequireRoleAtLeast(actor, types.RoleAdmin); err != nil {
		return types.Channel{}, err
	}

	channel, err := s.repo.Unlock(ctx, channelID, actor.UserID, s.clock.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return types.Channel{}, authz.NotFound("channel not found")
		case errors.Is(err, store.ErrConflict):
			return types.Channel{}, authz.InvalidState("not locked")
		}
		return types.Channel{}, err
	}

	s.audit.Record(ctx, types.ModerationLogEntry{
		Action:          types.ActionChannelUnlocked,
		ActorID:         actor.UserID,
		TargetChannelID: &channel.ID,
	})
	return channel, nil
}

// History returns the lock transitions of a channel, newest first.
func (s *ChannelLockService) History(ctx context.Context, actor types.Identity, channelID, limit int) ([]types.LockHistoryEntry, error) {
	if err := authz.RequireRoleAtLeast(actor, types.RoleModerator); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, authz.NotFound("channel not found")
		}
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.ListLockHistory(ctx, channelID, limit)
}
