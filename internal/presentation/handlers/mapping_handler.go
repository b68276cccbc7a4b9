package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/application/services"
)

// MappingHandler handles HTTP requests for gift mappings
type MappingHandler struct {
	service *services.MappingService
	logger  *zap.Logger
}

// NewMappingHandler creates a new mapping handler
func NewMappingHandler(service *services.MappingService, logger *zap.Logger) *MappingHandler {
	return &MappingHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the mapping routes
func (h *MappingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/mappings/{tokenId}", h.GetMapping)
	r.Get("/mappings/{tokenId}/verify", h.VerifyMapping)
}

// GetMapping handles GET /api/v1/mappings/{tokenId}
func (h *MappingHandler) GetMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID := chi.URLParam(r, "tokenId")

	if !isValidTokenID(tokenID) {
		h.respondError(w, http.StatusBadRequest, "Invalid token id format")
		return
	}

	response, err := h.service.Get(ctx, tokenID)
	if err != nil {
		h.logger.Error("Failed to get mapping", zap.Error(err), zap.String("token_id", tokenID))
		h.respondError(w, http.StatusInternalServerError, "Failed to get mapping")
		return
	}

	if response == nil {
		h.respondError(w, http.StatusNotFound, "mapping not found")
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// VerifyMapping handles GET /api/v1/mappings/{tokenId}/verify
func (h *MappingHandler) VerifyMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID := chi.URLParam(r, "tokenId")

	if !isValidTokenID(tokenID) {
		h.respondError(w, http.StatusBadRequest, "Invalid token id format")
		return
	}

	response, err := h.service.Verify(ctx, tokenID)
	if err != nil {
		h.logger.Error("Failed to verify mapping", zap.Error(err), zap.String("token_id", tokenID))
		h.respondError(w, http.StatusInternalServerError, "Failed to verify mapping")
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

func (h *MappingHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *MappingHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// isValidTokenID accepts decimal uint256 token ids
func isValidTokenID(id string) bool {
	if len(id) == 0 || len(id) > 78 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
