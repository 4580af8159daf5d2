package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

// AdminKeyService is the operator side of service.KeyService.
type AdminKeyService interface {
	Status(ctx context.Context, userIDs []string) ([]model.AccessKeyStatus, error)
	ResetDevice(ctx context.Context, userID string) error
}

// Sweeper removes expired keys on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (int64, error)
}

// AdminHandler provides operator endpoints. Routes are mounted behind
// middleware.AdminAuth.
type AdminHandler struct {
	keys    AdminKeyService
	sweeper Sweeper
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(keys AdminKeyService, sweeper Sweeper, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		keys:    keys,
		sweeper: sweeper,
		logger:  logger,
	}
}

// KeyStatusResponse wraps the stored key of one user.
type KeyStatusResponse struct {
	Data model.AccessKeyStatus `json:"data"`
}

// SweepResponse reports how many rows a sweep removed.
type SweepResponse struct {
	Deleted int64 `json:"deleted"`
}

// GetKey handles GET /api/admin/keys/{user_id}.
func (h *AdminHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))

	statuses, err := h.keys.Status(r.Context(), []string{userID})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if len(statuses) == 0 {
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "No key stored for user")
		return
	}

	h.audit(r, "admin_key_viewed", "user_id", userID)
	writeJSON(w, http.StatusOK, KeyStatusResponse{Data: statuses[0]})
}

// ResetDevice handles DELETE /api/admin/devices/{user_id}.
func (h *AdminHandler) ResetDevice(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))

	if err := h.keys.ResetDevice(r.Context(), userID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "BINDING_NOT_FOUND", "No device bound to user")
			return
		}
		h.handleServiceError(w, r, err)
		return
	}

	h.audit(r, "admin_device_reset", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// Sweep handles POST /api/admin/sweep.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "admin_sweep_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	h.audit(r, "admin_sweep", "deleted", deleted)
	writeJSON(w, http.StatusOK, SweepResponse{Deleted: deleted})
}

func (h *AdminHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", requestErrorMessage(err))
	default:
		h.logger.ErrorContext(r.Context(), "internal_error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// audit logs an operator action with the caller identity.
func (h *AdminHandler) audit(r *http.Request, msg string, args ...any) {
	if op := auth.OperatorFromContext(r.Context()); op != nil {
		args = append(args, "operator", op.TokenPrefix, "remote_addr", op.RemoteAddr)
	}
	h.logger.InfoContext(r.Context(), msg, args...)
}
