package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/metrics"
	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/types"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

const (
	// codeAlphabet omits 0, 1, I and O. Its length is a power of two so a
	// masked random byte indexes it without bias.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8

	defaultCodeTTL         = 24 * time.Hour
	defaultRedeemPerMinute = 5
	issueAttempts          = 3

	limiterCacheSize = 4096
	limiterIdleTTL   = 10 * time.Minute
)

// AccessCodeRepository defines persistence operations for access codes.
type AccessCodeRepository interface {
	Create(ctx context.Context, code types.AccessCode) (types.AccessCode, error)
	GetByHash(ctx context.Context, hashedSecret string) (types.AccessCode, error)
	Redeem(ctx context.Context, code types.AccessCode, userID int, at time.Time) error
}

// AccessCodeOptions tunes issuance and redemption.
type AccessCodeOptions struct {
	Pepper          string
	TTL             time.Duration
	RedeemPerMinute int
	// Random overrides the entropy source; crypto/rand when nil.
	Random io.Reader
}

// AccessCodeService issues and redeems single-use codes that grant one
// user entry into one locked channel.
type AccessCodeService struct {
	codes    AccessCodeRepository
	channels ChannelNamer
	users    UserReader
	audit    *AuditLog
	clock    clock.Clock

	key    []byte
	ttl    time.Duration
	random io.Reader

	perMinute int
	mu        sync.Mutex
	limiters  *lru.LRU[int, *rate.Limiter]
}

func NewAccessCodeService(
	codes AccessCodeRepository,
	channels ChannelNamer,
	users UserReader,
	audit *AuditLog,
	clk clock.Clock,
	opts AccessCodeOptions,
) *AccessCodeService {
	if clk == nil {
		clk = clock.Real()
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultCodeTTL
	}
	if opts.RedeemPerMinute <= 0 {
		opts.RedeemPerMinute = defaultRedeemPerMinute
	}
	if opts.Random == nil {
		opts.Random = rand.Reader
	}
	var key []byte
	if opts.Pepper != "" {
		sum := blake2b.Sum256([]byte(opts.Pepper))
		key = sum[:]
	}
	return &AccessCodeService{
		codes:     codes,
		channels:  channels,
		users:     users,
		audit:     audit,
		clock:     clk,
		key:       key,
		ttl:       opts.TTL,
		random:    opts.Random,
		perMinute: opts.RedeemPerMinute,
		limiters:  lru.NewLRU[int, *rate.Limiter](limiterCacheSize, nil, limiterIdleTTL),
	}
}

// NormalizeCode canonicalizes user input before hashing.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *AccessCodeService) hash(normalized string) string {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// key is nil or 32 bytes, both valid
		panic(err)
	}
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *AccessCodeService) generate() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[b&byte(len(codeAlphabet)-1)]
	}
	return string(buf), nil
}

// Issue mints a code for targetUserID on a locked channel. The plaintext
// is returned once and only its hash is stored.
func (s *AccessCodeService) Issue(ctx context.Context, actor types.Identity, channelID, targetUserID int) (types.IssuedAccessCode, error) {
	if err := authz.RequireRoleAtLeast(actor, types.RoleAdmin); err != nil {
		return types.IssuedAccessCode{}, err
	}

	channel, err := s.channels.Get(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.IssuedAccessCode{}, authz.NotFound("channel not found")
		}
		return types.IssuedAccessCode{}, err
	}
	if _, err := s.users.GetByID(ctx, targetUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.IssuedAccessCode{}, authz.NotFound("user not found")
		}
		return types.IssuedAccessCode{}, err
	}
	if !channel.Lock.Locked {
		return types.IssuedAccessCode{}, authz.InvalidState("channel not locked")
	}

	now := s.clock.Now().UTC()
	record := types.AccessCode{
		ChannelID:    channelID,
		TargetUserID: targetUserID,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	var plaintext string
	for attempt := 1; ; attempt++ {
		plaintext, err = s.generate()
		if err != nil {
			return types.IssuedAccessCode{}, err
		}
		record.HashedSecret = s.hash(plaintext)
		saved, err := s.codes.Create(ctx, record)
		if err == nil {
			record = saved
			break
		}
		// a hash collision with an existing code; draw again
		if !errors.Is(err, store.ErrConflict) || attempt >= issueAttempts {
			return types.IssuedAccessCode{}, err
		}
	}

	s.audit.Record(ctx, types.ModerationLogEntry{
		Action:          types.ActionAccessCodeIssued,
		ActorID:         actor.UserID,
		TargetUserID:    &record.TargetUserID,
		TargetChannelID: &record.ChannelID,
	})
	return types.IssuedAccessCode{
		Code:      plaintext,
		ChannelID: record.ChannelID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Redeem consumes a code for the actor. On success the actor holds a
// permanent lock override for the channel and is a member of it.
func (s *AccessCodeService) Redeem(ctx context.Context, actor types.Identity, code string) (types.Redemption, error) {
	redemption, err := s.redeem(ctx, actor, code)
	outcome := "success"
	if err != nil {
		outcome = string(authz.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.Redemptions.WithLabelValues(outcome).Inc()
	return redemption, err
}

func (s *AccessCodeService) redeem(ctx context.Context, actor types.Identity, code string) (types.Redemption, error) {
	if err := authz.RequireNotSuspended(actor); err != nil {
		return types.Redemption{}, err
	}
	now := s.clock.Now()
	if !s.limiter(actor.UserID).AllowN(now, 1) {
		return types.Redemption{}, authz.ErrRateLimited
	}

	normalized := NormalizeCode(code)
	if len(normalized) != codeLength {
		return types.Redemption{}, authz.ErrInvalidCode
	}
	record, err := s.codes.GetByHash(ctx, s.hash(normalized))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Redemption{}, authz.ErrInvalidCode
		}
		return types.Redemption{}, err
	}

	switch {
	case record.Used:
		return types.Redemption{}, authz.ErrAlreadyUsed
	case now.After(record.ExpiresAt):
		return types.Redemption{}, authz.ErrExpired
	case record.TargetUserID != actor.UserID:
		return types.Redemption{}, authz.ErrIdentityMismatch
	}

	if err := s.codes.Redeem(ctx, record, actor.UserID, now.UTC()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Redemption{}, authz.ErrAlreadyUsed
		}
		return types.Redemption{}, err
	}

	s.audit.Record(ctx, types.ModerationLogEntry{
		Action:          types.ActionAccessCodeRedeemed,
		ActorID:         actor.UserID,
		TargetUserID:    &actor.UserID,
		TargetChannelID: &record.ChannelID,
	})
	return types.Redemption{ChannelID: record.ChannelID}, nil
}

func (s *AccessCodeService) limiter(userID int) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters.Get(userID); ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.perMinute)
	s.limiters.Add(userID, l)
	return l
}
