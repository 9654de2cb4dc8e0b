package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/palaver-chat/apiserver/internal/services"
)

// ChannelHandler serves channel lock administration and access-code
// issuance.
type ChannelHandler struct {
	locks *services.ChannelLockService
	codes *services.AccessCodeService
}

func NewChannelHandler(locks *services.ChannelLockService, codes *services.AccessCodeService) *ChannelHandler {
	return &ChannelHandler{locks: locks, codes: codes}
}

// ChannelRouter registers channel routes on the given router. Every route
// requires authentication; role checks happen in the services.
func ChannelRouter(
	r chi.Router,
	locks *services.ChannelLockService,
	codes *services.AccessCodeService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewChannelHandler(locks, codes)

	r.Route("/{channelID}", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/lock", handler.Lock)
		r.Post("/unlock", handler.Unlock)
		r.Get("/lock-history", handler.LockHistory)
		r.Post("/access-codes", handler.IssueAccessCode)
	})
}

type LockRequest struct {
	Reason string `json:"reason"`
}

type IssueAccessCodeRequest struct {
	TargetUserID int `json:"target_user_id"`
}

func (h *ChannelHandler) Lock(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	channelID, err := parseIDParam(r, "channelID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req LockRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	channel, err := h.locks.Lock(r.Context(), identity, channelID, req.Reason)
	if err != nil {
		writeServiceError(w, r, err, "failed to lock channel")
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *ChannelHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	channelID, err := parseIDParam(r, "channelID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	channel, err := h.locks.Unlock(r.Context(), identity, channelID)
	if err != nil {
		writeServiceError(w, r, err, "failed to unlock channel")
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *ChannelHandler) LockHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	channelID, err := parseIDParam(r, "channelID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.locks.History(r.Context(), identity, channelID, limit)
	if err != nil {
		writeServiceError(w, r, err, "failed to load lock history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ChannelHandler) IssueAccessCode(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	channelID, err := parseIDParam(r, "channelID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req IssueAccessCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TargetUserID < 1 {
		writeError(w, http.StatusBadRequest, "target_user_id is required")
		return
	}

	issued, err := h.codes.Issue(r.Context(), identity, channelID, req.TargetUserID)
	if err != nil {
		writeServiceError(w, r, err, "failed to issue access code")
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}
