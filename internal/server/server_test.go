package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/palaver-chat/apiserver/config"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/handlers"
	"github.com/palaver-chat/apiserver/internal/store/memstore"
	"github.com/palaver-chat/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	router *chi.Mux
	app    *App
	store  *memstore.Store
	clock  *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memstore.New()
	clk := clock.Fake(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{
		Auth:        config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		AccessCodes: config.AccessCodeConfig{Pepper: "pepper", TTL: 24 * time.Hour, RedeemPerMinute: 5},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := NewApp(cfg, MemoryRepositories(st), nil, nil, clk, logger)
	return &harness{router: NewRouter(app), app: app, store: st, clock: clk}
}

func (h *harness) user(t *testing.T, username string, role types.Role) (types.User, string) {
	t.Helper()
	user, err := h.store.Users.Create(context.Background(), types.User{
		Username:  username,
		Role:      role,
		CreatedAt: h.clock.Now().Add(-30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	token, _, err := h.app.Sessions.Issue(user.ID)
	require.NoError(t, err)
	return user, token
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterLoginAndMe(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)

	register := handlers.RegisterRequest{Username: "vera", Email: "vera@example.com", Name: "Vera", Password: "hunter22"}
	rec := h.do(t, http.MethodPost, "/auth/register", "", register)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decode[handlers.AuthResponse](t, rec)
	assert.Equal(types.RoleUser, registered.User.Role)
	assert.NotEmpty(registered.Token)

	rec = h.do(t, http.MethodPost, "/auth/register", "", register)
	assert.Equal(http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/login", "", handlers.LoginRequest{Username: "vera", Password: "wrong"})
	assert.Equal(http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/login", "", handlers.LoginRequest{Username: "vera", Password: "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[handlers.AuthResponse](t, rec)

	rec = h.do(t, http.MethodGet, "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal("vera", decode[types.User](t, rec).Username)
}

func TestUnauthenticatedRequests(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/channels/1/lock", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/channels/1/lock", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, token := h.user(t, "root", types.RoleAdmin)
	h.clock.Advance(2 * time.Hour)
	rec = h.do(t, http.MethodPost, "/channels/1/lock", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "expired session")
}

func TestLockEndpoints(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)
	_, admin := h.user(t, "root", types.RoleAdmin)
	_, mod := h.user(t, "mod", types.RoleModerator)
	channel, err := h.store.Channels.Create(context.Background(), "general")
	require.NoError(t, err)
	base := "/channels/" + strconv.Itoa(channel.ID)

	rec := h.do(t, http.MethodPost, base+"/lock", mod, handlers.LockRequest{Reason: "raid"})
	assert.Equal(http.StatusForbidden, rec.Code)
	assert.Equal("forbidden", decode[handlers.ErrorResponse](t, rec).Kind)

	rec = h.do(t, http.MethodPost, base+"/lock", admin, handlers.LockRequest{Reason: "raid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(decode[types.Channel](t, rec).Lock.Locked)

	rec = h.do(t, http.MethodPost, base+"/lock", admin, nil)
	assert.Equal(http.StatusConflict, rec.Code)
	assert.Equal("already locked", decode[handlers.ErrorResponse](t, rec).Error)

	rec = h.do(t, http.MethodGet, base+"/lock-history", mod, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(decode[[]types.LockHistoryEntry](t, rec), 1)

	rec = h.do(t, http.MethodPost, base+"/unlock", admin, nil)
	assert.Equal(http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodPost, base+"/unlock", admin, nil)
	assert.Equal(http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/channels/999/lock", admin, nil)
	assert.Equal(http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodPost, "/channels/abc/lock", admin, nil)
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestLockedChannelAccessCodeScenario(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t)
	_, admin := h.user(t, "root", types.RoleAdmin)
	v, vToken := h.user(t, "v", types.RoleUser)
	w, wToken := h.user(t, "w", types.RoleUser)
	channel, err := h.store.Channels.Create(ctx, "general")
	require.NoError(t, err)
	require.NoError(t, h.store.Channels.AddMember(ctx, channel.ID, v.ID))
	require.NoError(t, h.store.Channels.AddMember(ctx, channel.ID, w.ID))
	base := "/channels/" + strconv.Itoa(channel.ID)

	canPost := func(token string) handlers.EvaluateResponse {
		rec := h.do(t, http.MethodPost, "/authz/evaluate", token, handlers.EvaluateRequest{Guard: "post_message", ChannelID: channel.ID})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[handlers.EvaluateResponse](t, rec)
	}

	assert.True(canPost(vToken).Allowed)

	rec := h.do(t, http.MethodPost, base+"/lock", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	refused := canPost(vToken)
	assert.False(refused.Allowed)
	assert.Equal("channel_locked", refused.Kind)

	rec = h.do(t, http.MethodPost, base+"/access-codes", admin, handlers.IssueAccessCodeRequest{TargetUserID: v.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decode[types.IssuedAccessCode](t, rec)

	// W cannot use V's code, and cannot tell why
	rec = h.do(t, http.MethodPost, "/access-codes/redeem", wToken, handlers.RedeemRequest{Code: issued.Code})
	assert.Equal(http.StatusBadRequest, rec.Code)
	mismatch := rec.Body.String()

	rec = h.do(t, http.MethodPost, "/access-codes/redeem", wToken, handlers.RedeemRequest{Code: "ZZZZZZZZ"})
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Equal(mismatch, rec.Body.String())
	assert.Equal("invalid or expired code", decode[handlers.ErrorResponse](t, rec).Error)
	assert.Empty(decode[handlers.ErrorResponse](t, rec).Kind)

	rec = h.do(t, http.MethodPost, "/access-codes/redeem", vToken, handlers.RedeemRequest{Code: issued.Code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(channel.ID, decode[types.Redemption](t, rec).ChannelID)

	rec = h.do(t, http.MethodPost, "/access-codes/redeem", vToken, handlers.RedeemRequest{Code: issued.Code})
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Equal(mismatch, rec.Body.String())

	assert.True(canPost(vToken).Allowed)
	assert.Equal("channel_locked", canPost(wToken).Kind)
}

func TestRedeemRateLimitedOverHTTP(t *testing.T) {
	h := newHarness(t)
	_, token := h.user(t, "v", types.RoleUser)

	for range 5 {
		rec := h.do(t, http.MethodPost, "/access-codes/redeem", token, handlers.RedeemRequest{Code: "ZZZZZZZZ"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := h.do(t, http.MethodPost, "/access-codes/redeem", token, handlers.RedeemRequest{Code: "ZZZZZZZZ"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestEvaluateValidation(t *testing.T) {
	h := newHarness(t)
	_, token := h.user(t, "v", types.RoleUser)

	rec := h.do(t, http.MethodPost, "/authz/evaluate", token, handlers.EvaluateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/authz/evaluate", token, handlers.EvaluateRequest{Guard: "role_at_least", MinRole: "overlord"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/authz/evaluate", token, handlers.EvaluateRequest{Guard: "no_such_guard"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/authz/evaluate", token, handlers.EvaluateRequest{Guard: "role_at_least", MinRole: "moderator"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.EvaluateResponse](t, rec)
	assert.False(t, resp.Allowed)
	assert.Equal(t, "forbidden", resp.Kind)
}

func TestSuspensionEndpoints(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)
	admin, _ := h.user(t, "root", types.RoleAdmin)
	_, mod := h.user(t, "mod", types.RoleModerator)
	spammer, spammerToken := h.user(t, "spammer", types.RoleUser)

	rec := h.do(t, http.MethodPost, "/users/"+strconv.Itoa(admin.ID)+"/suspend", mod, nil)
	assert.Equal(http.StatusConflict, rec.Code)
	assert.Equal("cannot suspend admin", decode[handlers.ErrorResponse](t, rec).Error)

	rec = h.do(t, http.MethodPost, "/users/"+strconv.Itoa(admin.ID)+"/suspend", spammerToken, nil)
	assert.Equal(http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/users/"+strconv.Itoa(spammer.ID)+"/suspend", mod, handlers.SuspendRequest{Reason: "spam"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(decode[types.User](t, rec).Suspended)

	// the existing session now carries the suspension
	rec = h.do(t, http.MethodPost, "/authz/evaluate", spammerToken, handlers.EvaluateRequest{Guard: "not_suspended"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal("suspended", decode[handlers.EvaluateResponse](t, rec).Kind)

	rec = h.do(t, http.MethodGet, "/moderation/audit-log", mod, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	log := decode[handlers.AuditLogResponse](t, rec)
	require.Len(t, log.Items, 1)
	entry := log.Items[0]
	assert.Equal(types.ActionUserSuspended, entry.Action)
	assert.Equal("spam", entry.Reason)
	assert.Equal("spammer", entry.TargetName)
	assert.Equal("mod", entry.ActorName)

	rec = h.do(t, http.MethodPost, "/users/"+strconv.Itoa(spammer.ID)+"/unsuspend", mod, nil)
	assert.Equal(http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodPost, "/users/"+strconv.Itoa(spammer.ID)+"/unsuspend", mod, nil)
	assert.Equal(http.StatusConflict, rec.Code)
}

func TestModerationReadsRequireModerator(t *testing.T) {
	h := newHarness(t)
	_, user := h.user(t, "v", types.RoleUser)
	_, mod := h.user(t, "mod", types.RoleModerator)

	rec := h.do(t, http.MethodGet, "/moderation/audit-log", user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, http.MethodGet, "/moderation/anomalies", user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/moderation/audit-log?limit=0", mod, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/moderation/audit-log", mod, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/moderation/anomalies", mod, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
