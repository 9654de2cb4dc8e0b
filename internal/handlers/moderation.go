package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/palaver-chat/apiserver/internal/services"
	"github.com/palaver-chat/apiserver/types"
)

// ModerationHandler serves suspensions, the audit log and anomaly scans.
type ModerationHandler struct {
	suspensions *services.SuspensionService
	audit       *services.AuditLog
	detector    *services.AnomalyDetector
}

func NewModerationHandler(
	suspensions *services.SuspensionService,
	audit *services.AuditLog,
	detector *services.AnomalyDetector,
) *ModerationHandler {
	return &ModerationHandler{suspensions: suspensions, audit: audit, detector: detector}
}

// UserRouter registers the suspension routes under /users.
func UserRouter(r chi.Router, handler *ModerationHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/{userID}", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/suspend", handler.Suspend)
		r.Post("/unsuspend", handler.Unsuspend)
	})
}

// ModerationRouter registers the read-only moderation routes.
func ModerationRouter(r chi.Router, handler *ModerationHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/audit-log", handler.AuditLog)
		r.Get("/anomalies", handler.Anomalies)
	})
}

type SuspendRequest struct {
	Reason string `json:"reason"`
}

func (h *ModerationHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SuspendRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	user, err := h.suspensions.Suspend(r.Context(), identity, userID, req.Reason)
	if err != nil {
		writeServiceError(w, r, err, "failed to suspend user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *ModerationHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.suspensions.Unsuspend(r.Context(), identity, userID)
	if err != nil {
		writeServiceError(w, r, err, "failed to unsuspend user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type AuditLogResponse struct {
	Items []types.ModerationLogEntry `json:"items"`
}

func (h *ModerationHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.audit.List(r.Context(), identity, limit)
	if err != nil {
		writeServiceError(w, r, err, "failed to load audit log")
		return
	}
	if entries == nil {
		entries = []types.ModerationLogEntry{}
	}
	writeJSON(w, http.StatusOK, AuditLogResponse{Items: entries})
}

func (h *ModerationHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	findings, err := h.detector.Scan(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, err, "failed to scan for anomalies")
		return
	}
	writeJSON(w, http.StatusOK, findings)
}
