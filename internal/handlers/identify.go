package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"identity-reconciliation/internal/middleware"
	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/service"
)

const maxBodyBytes = 1 << 20

// Identifier resolves an identify request into a consolidated contact.
type Identifier interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error)
}

// IdentifyHandler handles the /identify endpoint
type IdentifyHandler struct {
	service Identifier
	logger  *zap.Logger
}

// NewIdentifyHandler creates a new identify handler
func NewIdentifyHandler(svc Identifier, logger *zap.Logger) *IdentifyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentifyHandler{service: svc, logger: logger}
}

// Handle processes the identify request
func (h *IdentifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", h.logger)
		return
	}

	log := h.logger.With(zap.String("request_id", middleware.GetRequestID(r.Context())))

	var req models.IdentifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		log.Debug("invalid identify body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid JSON", log)
		return
	}

	response, err := h.service.Identify(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrMissingIdentifier):
		writeError(w, http.StatusBadRequest, "Either email or phoneNumber must be provided", log)
		return
	case err != nil:
		log.Error("identify failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error", log)
		return
	}

	writeJSON(w, http.StatusOK, response, log)
}

func writeJSON(w http.ResponseWriter, status int, body any, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, log *zap.Logger) {
	writeJSON(w, status, models.ErrorResponse{Error: msg}, log)
}
