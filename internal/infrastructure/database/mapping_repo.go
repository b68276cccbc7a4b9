package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
)

// Ensure MappingRepo implements MappingRepository
var _ repositories.MappingRepository = (*MappingRepo)(nil)

// MappingRepo implements MappingRepository using PostgreSQL
type MappingRepo struct {
	db *sqlx.DB
}

// NewMappingRepo creates a new gift mapping repository
func NewMappingRepo(db *sqlx.DB) *MappingRepo {
	return &MappingRepo{db: db}
}

// Upsert stores the mapping under the (block_number, log_index) tie-break.
// The whole decision runs in one statement so concurrent writers from the
// stream engine and the reconciler commute to the same final state.
func (r *MappingRepo) Upsert(ctx context.Context, m *entities.GiftMapping) (repositories.UpsertOutcome, error) {
	query := `
		WITH prev AS (
			SELECT block_number, log_index FROM gift_mappings WHERE token_id = $1
		), upserted AS (
			INSERT INTO gift_mappings (token_id, gift_id, creator, nft_contract,
				block_number, log_index, tx_hash, block_time, expires_at,
				gate, gift_message, registered_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (token_id) DO UPDATE SET
				gift_id = EXCLUDED.gift_id,
				creator = EXCLUDED.creator,
				nft_contract = EXCLUDED.nft_contract,
				block_number = EXCLUDED.block_number,
				log_index = EXCLUDED.log_index,
				tx_hash = EXCLUDED.tx_hash,
				block_time = EXCLUDED.block_time,
				expires_at = EXCLUDED.expires_at,
				gate = EXCLUDED.gate,
				gift_message = EXCLUDED.gift_message,
				registered_by = EXCLUDED.registered_by,
				updated_at = NOW()
			WHERE (EXCLUDED.block_number, EXCLUDED.log_index) >
			      (gift_mappings.block_number, gift_mappings.log_index)
			RETURNING 1
		)
		SELECT CASE
			WHEN NOT EXISTS (SELECT 1 FROM prev) THEN 'inserted'
			WHEN EXISTS (SELECT 1 FROM prev WHERE block_number = $5 AND log_index = $6) THEN 'duplicate'
			WHEN EXISTS (SELECT 1 FROM upserted) THEN 'updated'
			ELSE 'superseded'
		END
	`

	var outcome string
	err := r.db.GetContext(ctx, &outcome, query,
		m.TokenID, m.GiftID, m.Creator, m.NFTContract,
		m.BlockNumber, m.LogIndex, m.TxHash, m.BlockTime, m.ExpiresAt,
		m.Gate, m.GiftMessage, m.RegisteredBy,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert mapping: %w", err)
	}

	return repositories.UpsertOutcome(outcome), nil
}

// Repair overwrites the stored mapping with a chain-derived one, ignoring
// the ordering guard. Only the reconciler calls this.
func (r *MappingRepo) Repair(ctx context.Context, m *entities.GiftMapping) error {
	query := `
		INSERT INTO gift_mappings (token_id, gift_id, creator, nft_contract,
			block_number, log_index, tx_hash, block_time, expires_at,
			gate, gift_message, registered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (token_id) DO UPDATE SET
			gift_id = EXCLUDED.gift_id,
			creator = EXCLUDED.creator,
			nft_contract = EXCLUDED.nft_contract,
			block_number = EXCLUDED.block_number,
			log_index = EXCLUDED.log_index,
			tx_hash = EXCLUDED.tx_hash,
			block_time = EXCLUDED.block_time,
			expires_at = EXCLUDED.expires_at,
			gate = EXCLUDED.gate,
			gift_message = EXCLUDED.gift_message,
			registered_by = EXCLUDED.registered_by,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		m.TokenID, m.GiftID, m.Creator, m.NFTContract,
		m.BlockNumber, m.LogIndex, m.TxHash, m.BlockTime, m.ExpiresAt,
		m.Gate, m.GiftMessage, m.RegisteredBy,
	)
	if err != nil {
		return fmt.Errorf("failed to repair mapping: %w", err)
	}

	return nil
}

// Get retrieves the mapping for a token id
func (r *MappingRepo) Get(ctx context.Context, tokenID string) (*entities.GiftMapping, error) {
	var m entities.GiftMapping
	query := `SELECT * FROM gift_mappings WHERE token_id = $1`

	if err := r.db.GetContext(ctx, &m, query, tokenID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	return &m, nil
}

// Sample returns the most recently updated mappings for cross-checking
func (r *MappingRepo) Sample(ctx context.Context, limit int) ([]entities.GiftMapping, error) {
	var mappings []entities.GiftMapping
	query := `SELECT * FROM gift_mappings ORDER BY updated_at DESC LIMIT $1`

	if err := r.db.SelectContext(ctx, &mappings, query, limit); err != nil {
		return nil, fmt.Errorf("failed to sample mappings: %w", err)
	}

	return mappings, nil
}

// Stats returns store-level aggregates including DLQ size and lag
func (r *MappingRepo) Stats(ctx context.Context) (*entities.MappingStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_mappings,
			COALESCE(MAX(block_number), 0) AS latest_mapped_block,
			COALESCE(MIN(block_number), 0) AS earliest_mapped_block,
			COALESCE(EXTRACT(EPOCH FROM NOW() - MAX(block_time)), 0)::BIGINT AS lag_seconds,
			(SELECT COUNT(*) FROM dlq_entries) AS dlq_count
		FROM gift_mappings
	`

	var stats entities.MappingStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get mapping stats: %w", err)
	}

	return &stats, nil
}
