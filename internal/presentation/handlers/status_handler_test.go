package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
)

type stubStatusReporter struct {
	status entities.EngineStatus
}

func (s *stubStatusReporter) Status(ctx context.Context) entities.EngineStatus {
	return s.status
}

func TestGetStatus(t *testing.T) {
	reporter := &stubStatusReporter{
		status: entities.EngineStatus{
			Running: true,
			Phase:   "streaming",
			Backfill: entities.BackfillStatus{
				State:           entities.BackfillComplete,
				TargetBlock:     110,
				PercentComplete: 100,
			},
			Stream: entities.StreamStatus{
				Running:   true,
				Mode:      entities.StreamModeSubscription,
				LastBlock: 120,
			},
			Store: entities.MappingStats{TotalMappings: 2},
		},
	}
	handler := NewStatusHandler(reporter, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	handler.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var decoded entities.EngineStatus
	if err := json.NewDecoder(w.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if decoded.Phase != "streaming" {
		t.Errorf("phase = %s, want streaming", decoded.Phase)
	}
	if decoded.Backfill.State != entities.BackfillComplete {
		t.Errorf("backfill state = %s, want complete", decoded.Backfill.State)
	}
	if decoded.Stream.LastBlock != 120 {
		t.Errorf("stream last block = %d, want 120", decoded.Stream.LastBlock)
	}
}
