package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/types"
)

const defaultTokenTTL = 24 * time.Hour

// Sessions issues HS256 bearer tokens and resolves them back into
// identities. It implements authz.IdentityResolver.
type Sessions struct {
	users  UserReader
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewSessions(users UserReader, secret string, ttl time.Duration, clk clock.Clock) *Sessions {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Sessions{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clk,
	}
}

// Issue signs a token for userID.
func (s *Sessions) Issue(userID int) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Resolve maps a token to the current identity of its subject. Malformed,
// expired and unknown-subject tokens all resolve to ok=false.
func (s *Sessions) Resolve(ctx context.Context, token string) (types.Identity, bool, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return types.Identity{}, false, nil
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return types.Identity{}, false, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, false, nil
		}
		return types.Identity{}, false, err
	}
	return user.Identity(claims.ExpiresAt.Time), true, nil
}
