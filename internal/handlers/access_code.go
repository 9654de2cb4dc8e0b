package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/palaver-chat/apiserver/internal/services"
)

type AccessCodeHandler struct {
	codes *services.AccessCodeService
}

func NewAccessCodeHandler(codes *services.AccessCodeService) *AccessCodeHandler {
	return &AccessCodeHandler{codes: codes}
}

// AccessCodeRouter registers the redemption route.
func AccessCodeRouter(r chi.Router, codes *services.AccessCodeService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAccessCodeHandler(codes)
	r.With(authMiddleware).Post("/redeem", handler.Redeem)
}

type RedeemRequest struct {
	Code string `json:"code"`
}

// Redeem consumes an access code for the caller. Every code-related
// failure yields the same response.
func (h *AccessCodeHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RedeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	redemption, err := h.codes.Redeem(r.Context(), identity, req.Code)
	if err != nil {
		writeServiceError(w, r, err, "failed to redeem access code")
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}
