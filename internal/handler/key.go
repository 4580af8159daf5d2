package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

// KeyService is the part of service.KeyService used by the key endpoints.
type KeyService interface {
	Issue(ctx context.Context, userID string) (*service.IssueResult, error)
	Verify(ctx context.Context, keyValue, fingerprint string) (*service.VerifyResult, error)
}

// KeyHandler serves the public key endpoints.
type KeyHandler struct {
	svc    KeyService
	logger *slog.Logger
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(svc KeyService, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		svc:    svc,
		logger: logger,
	}
}

// KeyErrorResponse is the error body of the key endpoints.
type KeyErrorResponse struct {
	Error string `json:"error"`
}

// Messages existing clients match on.
const (
	msgMissingUserID = "Missing user ID"
	msgMissingKey    = "No key provided"
	msgInvalidBody   = "Invalid request body"
	msgBodyTooLarge  = "Request body too large"
	msgServerError   = "Server error"
)

// Generate handles POST /api/generate-key.
func (h *KeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		status, msg := decodeFailure(err)
		writeJSON(w, status, KeyErrorResponse{Error: msg})
		return
	}

	result, err := h.svc.Issue(r.Context(), req.ResolveUserID())
	if err != nil {
		status, msg := h.keyFailure(r, "generate_key_failed", err)
		writeJSON(w, status, KeyErrorResponse{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, model.GenerateKeyResponse{
		Key:       result.Key.KeyValue,
		ExpiresAt: result.Key.ExpiresAt,
	})
}

// Verify handles POST /api/verify-key.
// Every non-2xx body still carries valid=false.
func (h *KeyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		status, msg := decodeFailure(err)
		writeJSON(w, status, model.VerifyKeyResponse{Valid: false, Error: msg})
		return
	}

	result, err := h.svc.Verify(r.Context(), req.Key, req.HWID)
	if err != nil {
		status, msg := h.keyFailure(r, "verify_key_failed", err)
		writeJSON(w, status, model.VerifyKeyResponse{Valid: false, Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, model.VerifyKeyResponse{
		Valid:  result.Valid,
		UserID: model.UserRef(result.UserID),
		Reason: result.Reason,
	})
}

func decodeFailure(err error) (int, string) {
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge, msgBodyTooLarge
	}
	return http.StatusBadRequest, msgInvalidBody
}

// keyFailure maps a service error to a status and a client-safe message.
func (h *KeyHandler) keyFailure(r *http.Request, event string, err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMissingUserID):
		return http.StatusBadRequest, msgMissingUserID
	case errors.Is(err, service.ErrMissingKey):
		return http.StatusBadRequest, msgMissingKey
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, requestErrorMessage(err)
	default:
		h.logger.ErrorContext(r.Context(), event,
			"path", r.URL.Path,
			"store_error", service.IsStoreError(err),
			"error", err,
		)
		return http.StatusInternalServerError, msgServerError
	}
}

// requestErrorMessage strips the shared prefix from a request error.
func requestErrorMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), service.ErrInvalidRequest.Error()+": ")
	if msg == "" {
		return service.ErrInvalidRequest.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
