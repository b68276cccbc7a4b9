package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/testutil"
)

func testReconcilerConfig() config.ReconcilerConfig {
	return config.ReconcilerConfig{
		Interval:    time.Hour,
		SampleSize:  25,
		BlockWindow: 5,
		DLQRetryMax: 3,
	}
}

func newReconcilerFixture(t *testing.T, chain *testutil.MockChainReader, mappings *testutil.MockMappingRepository, dlq *testutil.MockDLQRepository) *ReconcilerService {
	t.Helper()
	decoder, err := ethereum.NewDecoder(common.HexToAddress(testutil.GiftContractAddress))
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}
	return NewReconcilerService(chain, decoder, mappings, dlq, testReconcilerConfig(), zap.NewNop())
}

func TestReconciler_RepairsDivergedMapping(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)
	chain.AddLog(testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 135, GiftID: 77, BlockNumber: 100}))

	// The store carries a corrupted gift id at the right block.
	mappings := testutil.NewMockMappingRepository()
	corrupted := testutil.CreateTestMapping(testutil.WithTokenID("135"), testutil.WithGiftID("999"), testutil.WithBlockNumber(100))
	mappings.Mappings["135"] = corrupted

	s := newReconcilerFixture(t, chain, mappings, testutil.NewMockDLQRepository())
	s.RunOnce(context.Background())

	status := s.Status()
	if status.Checked != 1 || status.Repaired != 1 {
		t.Fatalf("checked = %d, repaired = %d, want 1 and 1", status.Checked, status.Repaired)
	}

	repaired := mappings.Mappings["135"]
	if repaired.GiftID != "77" {
		t.Errorf("GiftID after repair = %s, want 77 (chain value)", repaired.GiftID)
	}
	if repaired.BlockNumber != 100 {
		t.Errorf("BlockNumber after repair = %d, want 100", repaired.BlockNumber)
	}
}

func TestReconciler_LeavesMatchingMappingsAlone(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)
	log := testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 135, GiftID: 77, BlockNumber: 100})
	chain.AddLog(log)

	mappings := testutil.NewMockMappingRepository()
	processor := newTestProcessor(t, chain, mappings, testutil.NewMockDLQRepository())
	if _, err := processor.ProcessBatch(context.Background(), []types.Log{log}); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	s := newReconcilerFixture(t, chain, mappings, testutil.NewMockDLQRepository())
	s.RunOnce(context.Background())

	status := s.Status()
	if status.Checked != 1 || status.Repaired != 0 {
		t.Errorf("checked = %d, repaired = %d, want 1 and 0", status.Checked, status.Repaired)
	}
}

func TestReconciler_NoRepairWithoutChainEvidence(t *testing.T) {
	// The chain event sits outside the verification window, so the
	// re-derivation comes back empty. Absence is not proof of
	// divergence and must not trigger a repair.
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(600)
	chain.AddLog(testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 135, GiftID: 77, BlockNumber: 100}))

	mappings := testutil.NewMockMappingRepository()
	stored := testutil.CreateTestMapping(testutil.WithTokenID("135"), testutil.WithGiftID("999"), testutil.WithBlockNumber(500))
	mappings.Mappings["135"] = stored

	s := newReconcilerFixture(t, chain, mappings, testutil.NewMockDLQRepository())
	s.RunOnce(context.Background())

	if got := s.Status().Repaired; got != 0 {
		t.Errorf("repaired = %d, want 0", got)
	}
	if mappings.Mappings["135"].GiftID != "999" {
		t.Error("stored mapping was modified without chain evidence")
	}
}

func TestReconciler_RecoversDLQEntry(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)

	raw, err := json.Marshal(testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 140, GiftID: 80, BlockNumber: 105}))
	if err != nil {
		t.Fatal(err)
	}

	dlq := testutil.NewMockDLQRepository()
	if err := dlq.Push(context.Background(), &entities.DLQEntry{RawLog: raw, Reason: "rpc timeout"}); err != nil {
		t.Fatal(err)
	}

	mappings := testutil.NewMockMappingRepository()
	s := newReconcilerFixture(t, chain, mappings, dlq)
	s.RunOnce(context.Background())

	status := s.Status()
	if status.DLQRetried != 1 || status.DLQRecovered != 1 {
		t.Fatalf("retried = %d, recovered = %d, want 1 and 1", status.DLQRetried, status.DLQRecovered)
	}
	if len(dlq.Entries) != 0 {
		t.Errorf("DLQ still holds %d entries, want 0", len(dlq.Entries))
	}
	if stored, _ := mappings.Get(context.Background(), "140"); stored == nil || stored.GiftID != "80" {
		t.Errorf("recovered mapping = %+v, want gift 80", stored)
	}
}

func TestReconciler_BumpsRetryOnUndecodableEntry(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)

	dlq := testutil.NewMockDLQRepository()
	if err := dlq.Push(context.Background(), &entities.DLQEntry{RawLog: []byte("not json"), Reason: "malformed"}); err != nil {
		t.Fatal(err)
	}

	s := newReconcilerFixture(t, chain, testutil.NewMockMappingRepository(), dlq)
	s.RunOnce(context.Background())

	if got := s.Status().DLQRecovered; got != 0 {
		t.Errorf("recovered = %d, want 0", got)
	}
	if len(dlq.Entries) != 1 {
		t.Fatalf("DLQ holds %d entries, want 1", len(dlq.Entries))
	}
	if got := dlq.Entries[0].RetryCount; got != 1 {
		t.Errorf("RetryCount = %d, want 1", got)
	}
}

func TestReconciler_RetryCapKeepsEntryForInspection(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)

	dlq := testutil.NewMockDLQRepository()
	entry := &entities.DLQEntry{RawLog: []byte("not json"), Reason: "malformed"}
	if err := dlq.Push(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	dlq.Entries[0].RetryCount = testReconcilerConfig().DLQRetryMax

	s := newReconcilerFixture(t, chain, testutil.NewMockMappingRepository(), dlq)
	s.RunOnce(context.Background())

	if got := s.Status().DLQRetried; got != 0 {
		t.Errorf("retried = %d, want 0 (entry is past the cap)", got)
	}
	if len(dlq.Entries) != 1 {
		t.Error("capped entry must stay in the queue for inspection")
	}
	if got := dlq.Entries[0].RetryCount; got != testReconcilerConfig().DLQRetryMax {
		t.Errorf("RetryCount = %d, want unchanged", got)
	}
}

func TestReconciler_ReportsLag(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(150)

	mappings := testutil.NewMockMappingRepository()
	mappings.Mappings["135"] = testutil.CreateTestMapping(testutil.WithBlockNumber(100))
	chain.AddLog(testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 135, GiftID: 77, BlockNumber: 100}))

	s := newReconcilerFixture(t, chain, mappings, testutil.NewMockDLQRepository())
	s.RunOnce(context.Background())

	if got := s.Status().LagBlocks; got != 50 {
		t.Errorf("LagBlocks = %d, want 50", got)
	}
}

func TestReconciler_TriggerNow(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)

	s := newReconcilerFixture(t, chain, testutil.NewMockMappingRepository(), testutil.NewMockDLQRepository())
	s.Start(context.Background())
	defer s.Stop()

	s.TriggerNow()

	waitFor(t, 2*time.Second, func() bool {
		return s.Status().LastRunAt != nil
	})
}
