package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/store/memstore"
	"github.com/palaver-chat/apiserver/types"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store       *memstore.Store
	clock       *clock.FakeClock
	audit       *AuditLog
	locks       *ChannelLockService
	codes       *AccessCodeService
	suspensions *SuspensionService

	admin     types.User
	moderator types.User
	alice     types.User
	bob       types.User
	channel   types.Channel
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithOptions(t, AccessCodeOptions{Pepper: "test-pepper"})
}

func newTestEnvWithOptions(t *testing.T, opts AccessCodeOptions) *testEnv {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	clk := clock.Fake(testNow)
	audit := NewAuditLog(st.ModerationLog, st.Users, st.Channels, clk, discardLogger())

	env := &testEnv{
		store:       st,
		clock:       clk,
		audit:       audit,
		locks:       NewChannelLockService(st.Channels, audit, clk),
		codes:       NewAccessCodeService(st.AccessCodes, st.Channels, st.Users, audit, clk, opts),
		suspensions: NewSuspensionService(st.Users, audit, clk),
	}
	env.admin = env.createUser(t, "root", types.RoleAdmin)
	env.moderator = env.createUser(t, "mod", types.RoleModerator)
	env.alice = env.createUser(t, "alice", types.RoleUser)
	env.bob = env.createUser(t, "bob", types.RoleUser)

	channel, err := st.Channels.Create(ctx, "general")
	require.NoError(t, err)
	env.channel = channel
	return env
}

func (e *testEnv) createUser(t *testing.T, username string, role types.Role) types.User {
	t.Helper()
	user, err := e.store.Users.Create(context.Background(), types.User{
		Username:  username,
		Role:      role,
		CreatedAt: testNow.Add(-30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return user
}

// identity re-reads the user so suspensions and role changes are visible.
func (e *testEnv) identity(t *testing.T, user types.User) types.Identity {
	t.Helper()
	current, err := e.store.Users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	return current.Identity(testNow.Add(24 * time.Hour))
}

func (e *testEnv) logEntries(t *testing.T) []types.ModerationLogEntry {
	t.Helper()
	entries, err := e.store.ModerationLog.List(context.Background(), 1000)
	require.NoError(t, err)
	return entries
}
