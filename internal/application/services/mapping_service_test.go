package services

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/testutil"
)

func newMappingService(t *testing.T, chain *testutil.MockChainReader, mappings *testutil.MockMappingRepository, readMode string) *MappingService {
	t.Helper()
	decoder, err := ethereum.NewDecoder(common.HexToAddress(testutil.GiftContractAddress))
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}
	cfg := config.APIConfig{ReadMode: readMode}
	return NewMappingService(mappings, chain, decoder, nil, cfg, 90, zap.NewNop())
}

func TestMappingService_GetFromStore(t *testing.T) {
	chain := testutil.NewMockChainReader()
	mappings := testutil.NewMockMappingRepository()

	blockTime := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mappings.Mappings["135"] = testutil.CreateTestMapping(testutil.WithBlockTime(blockTime))

	s := newMappingService(t, chain, mappings, "store")
	resp, err := s.Get(context.Background(), "135")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp == nil {
		t.Fatal("Get() = nil, want response")
	}
	if resp.Source != "store" {
		t.Errorf("Source = %s, want store", resp.Source)
	}
	if resp.Data.GiftID != "77" {
		t.Errorf("GiftID = %s, want 77", resp.Data.GiftID)
	}
	if resp.Data.BlockTime == nil || *resp.Data.BlockTime != "2025-03-01T10:00:00Z" {
		t.Errorf("BlockTime = %v, want RFC3339 UTC", resp.Data.BlockTime)
	}

	// No chain access on the store path.
	for _, call := range chain.Calls {
		if call.Method == "GetLogs" {
			t.Error("store read mode must not scan chain logs")
		}
	}
}

func TestMappingService_GetMissingReturnsNil(t *testing.T) {
	s := newMappingService(t, testutil.NewMockChainReader(), testutil.NewMockMappingRepository(), "store")

	resp, err := s.Get(context.Background(), "999")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp != nil {
		t.Errorf("Get() = %+v, want nil for unknown token", resp)
	}
}

func TestMappingService_GetFromChain(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)
	chain.AddLog(testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 135, GiftID: 77, BlockNumber: 100}))

	// The store is empty; chain read mode derives the answer anyway.
	s := newMappingService(t, chain, testutil.NewMockMappingRepository(), "chain")
	resp, err := s.Get(context.Background(), "135")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp == nil {
		t.Fatal("Get() = nil, want chain-derived response")
	}
	if resp.Source != "chain" {
		t.Errorf("Source = %s, want chain", resp.Source)
	}
	if resp.Data.GiftID != "77" || resp.Data.BlockNumber != 100 {
		t.Errorf("derived mapping = gift %s at block %d, want 77 at 100", resp.Data.GiftID, resp.Data.BlockNumber)
	}
}

func TestMappingService_VerifyMatch(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)
	log := testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 135, GiftID: 77, BlockNumber: 100})
	chain.AddLog(log)

	mappings := testutil.NewMockMappingRepository()
	processor := newTestProcessor(t, chain, mappings, testutil.NewMockDLQRepository())
	if _, err := processor.ProcessBatch(context.Background(), []types.Log{log}); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	s := newMappingService(t, chain, mappings, "store")
	resp, err := s.Verify(context.Background(), "135")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !resp.Match {
		t.Errorf("Match = false, stored %+v chain %+v", resp.Stored, resp.Chain)
	}
}

func TestMappingService_VerifyMismatch(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)
	chain.AddLog(testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 135, GiftID: 77, BlockNumber: 100}))

	mappings := testutil.NewMockMappingRepository()
	mappings.Mappings["135"] = testutil.CreateTestMapping(testutil.WithGiftID("999"))

	s := newMappingService(t, chain, mappings, "store")
	resp, err := s.Verify(context.Background(), "135")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if resp.Match {
		t.Error("Match = true for diverged gift id, want false")
	}
	if resp.Stored == nil || resp.Chain == nil {
		t.Error("both sides should be populated on a mismatch")
	}
}

func TestMappingService_VerifyBothMissing(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)

	s := newMappingService(t, chain, testutil.NewMockMappingRepository(), "store")
	resp, err := s.Verify(context.Background(), "999")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !resp.Match {
		t.Error("Match = false when neither side has the token, want true")
	}
	if resp.Stored != nil || resp.Chain != nil {
		t.Error("absent sides must stay nil in the response")
	}
}

func TestMappingService_VerifyStoredOnly(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)

	mappings := testutil.NewMockMappingRepository()
	mappings.Mappings["135"] = testutil.CreateTestMapping()

	s := newMappingService(t, chain, mappings, "store")
	resp, err := s.Verify(context.Background(), "135")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if resp.Match {
		t.Error("Match = true when the chain has no event, want false")
	}
}
