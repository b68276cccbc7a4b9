package repositories

import (
	"context"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
)

// UpsertOutcome classifies what a mapping upsert did, for observability.
// The mutation itself is a single ordered statement regardless of outcome.
type UpsertOutcome string

const (
	// OutcomeInserted means no mapping existed for the token id.
	OutcomeInserted UpsertOutcome = "inserted"

	// OutcomeDuplicate means the identical event was already stored.
	OutcomeDuplicate UpsertOutcome = "duplicate"

	// OutcomeUpdated means a lower-ordered mapping was replaced.
	OutcomeUpdated UpsertOutcome = "updated"

	// OutcomeSuperseded means the stored mapping is higher-ordered and
	// the incoming event was ignored.
	OutcomeSuperseded UpsertOutcome = "superseded"
)

// MappingRepository defines the interface for gift mapping persistence.
// Upsert is idempotent and commutative under the (block, log index)
// tie-break, so components never need read-then-write sequences.
type MappingRepository interface {
	// Upsert stores the mapping if it is new or supersedes the stored one.
	Upsert(ctx context.Context, m *entities.GiftMapping) (UpsertOutcome, error)

	// Repair unconditionally overwrites the stored mapping with a
	// chain-derived value. Reconciler use only.
	Repair(ctx context.Context, m *entities.GiftMapping) error

	// Get retrieves the mapping for a token id, nil if absent.
	Get(ctx context.Context, tokenID string) (*entities.GiftMapping, error)

	// Sample returns up to limit of the most recently updated mappings,
	// used by the reconciler's cross-check pass.
	Sample(ctx context.Context, limit int) ([]entities.GiftMapping, error)

	// Stats returns store-level aggregates.
	Stats(ctx context.Context) (*entities.MappingStats, error)
}

// CheckpointRepository tracks per-phase durable progress.
type CheckpointRepository interface {
	// Get returns the checkpoint block for an id, 0 if never saved.
	Get(ctx context.Context, id string) (uint64, error)

	// Save advances the checkpoint. The stored value never decreases.
	Save(ctx context.Context, id string, blockNumber uint64) error
}

// DLQRepository stores logs that failed decoding or persistence.
type DLQRepository interface {
	// Push records a failed log with its failure reason.
	Push(ctx context.Context, entry *entities.DLQEntry) error

	// List returns up to limit entries, oldest first.
	List(ctx context.Context, limit int) ([]entities.DLQEntry, error)

	// Count returns the number of pending entries.
	Count(ctx context.Context) (int64, error)

	// IncrementRetry bumps the retry counter after a failed retry.
	IncrementRetry(ctx context.Context, id int64) error

	// Delete removes an entry after a successful retry.
	Delete(ctx context.Context, id int64) error
}
