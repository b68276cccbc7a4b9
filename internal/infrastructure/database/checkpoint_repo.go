package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
)

// Ensure CheckpointRepo implements CheckpointRepository
var _ repositories.CheckpointRepository = (*CheckpointRepo)(nil)

// CheckpointRepo implements CheckpointRepository using PostgreSQL
type CheckpointRepo struct {
	db *sqlx.DB
}

// NewCheckpointRepo creates a new checkpoint repository
func NewCheckpointRepo(db *sqlx.DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Get returns the checkpoint block for an id, 0 if it was never saved
func (r *CheckpointRepo) Get(ctx context.Context, id string) (uint64, error) {
	var blockNumber uint64
	query := `SELECT block_number FROM checkpoints WHERE id = $1`

	if err := r.db.GetContext(ctx, &blockNumber, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get checkpoint %s: %w", id, err)
	}

	return blockNumber, nil
}

// Save advances the checkpoint. GREATEST keeps the stored value monotonic
// even if callers race or replay an older batch.
func (r *CheckpointRepo) Save(ctx context.Context, id string, blockNumber uint64) error {
	query := `
		INSERT INTO checkpoints (id, block_number)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			block_number = GREATEST(checkpoints.block_number, EXCLUDED.block_number),
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, id, blockNumber); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", id, err)
	}

	return nil
}
