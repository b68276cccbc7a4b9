package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
)

// StatusReporter exposes the engine's aggregate status.
// *services.Orchestrator satisfies it.
type StatusReporter interface {
	Status(ctx context.Context) entities.EngineStatus
}

// StatusHandler serves the indexing engine's status surface
type StatusHandler struct {
	engine StatusReporter
	logger *zap.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(engine StatusReporter, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		engine: engine,
		logger: logger,
	}
}

// GetStatus handles GET /status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("Failed to encode status response", zap.Error(err))
	}
}
