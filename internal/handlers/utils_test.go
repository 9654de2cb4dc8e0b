package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteServiceErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		body   string
	}{
		{authz.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{authz.Forbidden("admin role required"), http.StatusForbidden, "admin role required"},
		{authz.ErrNotOwner, http.StatusForbidden, "not owner"},
		{authz.ErrSuspended, http.StatusForbidden, "suspended"},
		{authz.ErrChannelLocked, http.StatusForbidden, "channel locked"},
		{authz.ErrWindowExpired, http.StatusForbidden, "window expired"},
		{authz.NotFound("channel not found"), http.StatusNotFound, "channel not found"},
		{authz.InvalidState("already locked"), http.StatusConflict, "already locked"},
		{authz.Validation("lock reason is too long"), http.StatusBadRequest, "lock reason is too long"},
		{authz.ErrRateLimited, http.StatusTooManyRequests, "rate limited"},
		{authz.ErrInvalidCode, http.StatusBadRequest, concealedCodeMessage},
		{authz.ErrAlreadyUsed, http.StatusBadRequest, concealedCodeMessage},
		{authz.ErrExpired, http.StatusBadRequest, concealedCodeMessage},
		{authz.ErrIdentityMismatch, http.StatusBadRequest, concealedCodeMessage},
		{fmt.Errorf("wrapped: %w", authz.ErrSuspended), http.StatusForbidden, "suspended"},
		{errors.New("connection reset"), http.StatusInternalServerError, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			writeServiceError(rec, req, tt.err, "fallback")

			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.body, resp.Error)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert := assert.New(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := bearerToken(req)
	assert.Error(err)

	req.Header.Set("Authorization", "Basic abc")
	_, err = bearerToken(req)
	assert.Error(err)

	req.Header.Set("Authorization", "bearer  tok ")
	token, err := bearerToken(req)
	assert.NoError(err)
	assert.Equal("tok", token)
}
