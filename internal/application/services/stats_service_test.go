package services

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/testutil"
)

func TestStatsService_GetStats(t *testing.T) {
	mappings := testutil.NewMockMappingRepository()
	mappings.Mappings["135"] = testutil.CreateTestMapping(testutil.WithBlockNumber(100))
	mappings.Mappings["136"] = testutil.CreateTestMapping(testutil.WithTokenID("136"), testutil.WithBlockNumber(105))

	s := NewStatsService(mappings, testutil.NewMockDLQRepository(), nil, zap.NewNop())
	resp, err := s.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if resp.Data.TotalMappings != 2 {
		t.Errorf("TotalMappings = %d, want 2", resp.Data.TotalMappings)
	}
	if resp.Data.LatestMappedBlock != 105 {
		t.Errorf("LatestMappedBlock = %d, want 105", resp.Data.LatestMappedBlock)
	}
}

func TestStatsService_GetStatsError(t *testing.T) {
	mappings := testutil.NewMockMappingRepository()
	mappings.StatsFunc = func(ctx context.Context) (*entities.MappingStats, error) {
		return nil, errors.New("connection lost")
	}

	s := NewStatsService(mappings, testutil.NewMockDLQRepository(), nil, zap.NewNop())
	if _, err := s.GetStats(context.Background()); err == nil {
		t.Error("GetStats() succeeded despite repository failure, want error")
	}
}

func TestStatsService_ListDLQ(t *testing.T) {
	dlq := testutil.NewMockDLQRepository()
	for i := 0; i < 3; i++ {
		if err := dlq.Push(context.Background(), &entities.DLQEntry{RawLog: []byte("{}"), Reason: "decode failed"}); err != nil {
			t.Fatal(err)
		}
	}

	s := NewStatsService(testutil.NewMockMappingRepository(), dlq, nil, zap.NewNop())
	resp, err := s.ListDLQ(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListDLQ() error = %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("returned %d entries, want limit of 2", len(resp.Data))
	}
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}
	if resp.Data[0].Reason != "decode failed" {
		t.Errorf("Reason = %s, want decode failed", resp.Data[0].Reason)
	}
}
