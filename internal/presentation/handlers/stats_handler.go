package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/application/services"
)

// StatsHandler handles HTTP requests for aggregate statistics and DLQ
// inspection
type StatsHandler struct {
	service *services.StatsService
	logger  *zap.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(service *services.StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the stats routes
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.GetStats)
	r.Get("/dlq", h.ListDLQ)
}

// GetStats handles GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response, err := h.service.GetStats(ctx)
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// ListDLQ handles GET /api/v1/dlq
func (h *StatsHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	response, err := h.service.ListDLQ(ctx, limit)
	if err != nil {
		h.logger.Error("Failed to list DLQ entries", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to list DLQ entries")
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

func (h *StatsHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *StatsHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
