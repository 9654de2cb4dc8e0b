package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/types"
)

// concealedCodeMessage is the single response for every failed redemption
// so that callers cannot probe which codes exist.
const concealedCodeMessage = "invalid or expired code"

const maxRequestBytes = 1 << 20

type contextKey string

const contextIdentityKey contextKey = "identity"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func withIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

func identityFromContext(ctx context.Context) (types.Identity, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(types.Identity)
	if !ok || identity.UserID < 1 {
		return types.Identity{}, false
	}
	return identity, true
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps refusals to their HTTP status. Anything that is
// not a refusal is logged and reported as a generic 500 with fallback as
// the message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var refusal *authz.Error
	if !errors.As(err, &refusal) {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, fallback)
		return
	}

	if refusal.Kind.Concealed() {
		writeError(w, http.StatusBadRequest, concealedCodeMessage)
		return
	}

	status := http.StatusInternalServerError
	switch refusal.Kind {
	case authz.KindUnauthenticated:
		status = http.StatusUnauthorized
	case authz.KindForbidden, authz.KindNotOwner, authz.KindSuspended,
		authz.KindChannelLocked, authz.KindWindowExpired:
		status = http.StatusForbidden
	case authz.KindNotFound:
		status = http.StatusNotFound
	case authz.KindInvalidState:
		status = http.StatusConflict
	case authz.KindValidation:
		status = http.StatusBadRequest
	case authz.KindRateLimited:
		status = http.StatusTooManyRequests
	}

	message := refusal.Message
	if message == "" {
		message = strings.ReplaceAll(string(refusal.Kind), "_", " ")
	}
	writeJSON(w, status, ErrorResponse{Error: message, Kind: string(refusal.Kind)})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request")
	}
	return nil
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + strings.TrimSuffix(name, "ID") + " id")
	}
	return id, nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}
