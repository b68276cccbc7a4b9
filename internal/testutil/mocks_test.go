package testutil

import (
	"context"
	"testing"
)

func TestMockMappingRepository_TieBreak(t *testing.T) {
	repo := NewMockMappingRepository()
	ctx := context.Background()

	first := CreateTestMapping(WithTokenID("135"), WithGiftID("77"), WithBlockNumber(100))
	outcome, err := repo.Upsert(ctx, first)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if outcome != "inserted" {
		t.Errorf("first Upsert() outcome = %s, want inserted", outcome)
	}

	// Identical event again
	outcome, _ = repo.Upsert(ctx, first)
	if outcome != "duplicate" {
		t.Errorf("repeat Upsert() outcome = %s, want duplicate", outcome)
	}

	// Higher-ordered event wins
	higher := CreateTestMapping(WithTokenID("135"), WithGiftID("88"), WithBlockNumber(101))
	outcome, _ = repo.Upsert(ctx, higher)
	if outcome != "updated" {
		t.Errorf("higher Upsert() outcome = %s, want updated", outcome)
	}

	// Lower-ordered event is ignored
	outcome, _ = repo.Upsert(ctx, first)
	if outcome != "superseded" {
		t.Errorf("lower Upsert() outcome = %s, want superseded", outcome)
	}

	stored, _ := repo.Get(ctx, "135")
	if stored == nil || stored.GiftID != "88" {
		t.Errorf("stored mapping = %+v, want gift id 88", stored)
	}
}

func TestMockCheckpointRepository_Monotonic(t *testing.T) {
	repo := NewMockCheckpointRepository()
	ctx := context.Background()

	if err := repo.Save(ctx, "backfill", 100); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Save(ctx, "backfill", 50); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, _ := repo.Get(ctx, "backfill")
	if got != 100 {
		t.Errorf("Get() = %d, want 100 (checkpoint must not regress)", got)
	}
}

func TestCreateGiftLog_Decodable(t *testing.T) {
	log := CreateGiftLog(GiftLogParams{
		TokenID:     135,
		GiftID:      77,
		BlockNumber: 100,
		Message:     "happy birthday",
	})

	if len(log.Topics) != 4 {
		t.Fatalf("fixture log has %d topics, want 4", len(log.Topics))
	}
	if log.BlockNumber != 100 {
		t.Errorf("fixture BlockNumber = %d, want 100", log.BlockNumber)
	}
	if len(log.Data) == 0 {
		t.Error("fixture log has empty data")
	}
}
