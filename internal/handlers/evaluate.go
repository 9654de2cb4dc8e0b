package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/types"
)

// EvaluateHandler exposes the permission evaluator to other services that
// need to ask whether the caller may perform an operation.
type EvaluateHandler struct {
	evaluator *authz.Evaluator
}

func NewEvaluateHandler(evaluator *authz.Evaluator) *EvaluateHandler {
	return &EvaluateHandler{evaluator: evaluator}
}

// AuthzRouter registers the evaluation routes.
func AuthzRouter(r chi.Router, evaluator *authz.Evaluator, authMiddleware func(http.Handler) http.Handler) {
	handler := NewEvaluateHandler(evaluator)
	r.With(authMiddleware).Post("/evaluate", handler.Evaluate)
}

type EvaluateRequest struct {
	Guard           string     `json:"guard"`
	ChannelID       int        `json:"channel_id"`
	ResourceOwnerID int        `json:"resource_owner_id"`
	CreatedAt       *time.Time `json:"created_at"`
	WindowMinutes   int        `json:"window_minutes"`
	MinRole         string     `json:"min_role"`
}

type EvaluateResponse struct {
	Allowed bool   `json:"allowed"`
	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Evaluate runs a guard or named policy for the caller. A refusal is a
// normal answer and is returned with 200.
func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Guard = strings.TrimSpace(req.Guard)
	if req.Guard == "" {
		writeError(w, http.StatusBadRequest, "guard is required")
		return
	}
	if req.WindowMinutes < 0 {
		writeError(w, http.StatusBadRequest, "invalid window_minutes")
		return
	}

	areq := authz.Request{
		Identity:        identity,
		ChannelID:       req.ChannelID,
		ResourceOwnerID: req.ResourceOwnerID,
		Window:          time.Duration(req.WindowMinutes) * time.Minute,
	}
	if req.CreatedAt != nil {
		areq.CreatedAt = *req.CreatedAt
	}
	if raw := strings.TrimSpace(req.MinRole); raw != "" {
		role := types.Role(strings.ToLower(raw))
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid min_role")
			return
		}
		areq.MinRole = role
	}

	err := h.evaluator.Evaluate(r.Context(), req.Guard, areq)
	if err == nil {
		writeJSON(w, http.StatusOK, EvaluateResponse{Allowed: true})
		return
	}
	kind := authz.KindOf(err)
	if kind == "" || kind == authz.KindValidation {
		writeServiceError(w, r, err, "failed to evaluate")
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{Kind: string(kind), Reason: err.Error()})
}
