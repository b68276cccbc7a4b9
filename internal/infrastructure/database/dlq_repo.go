package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
)

// Ensure DLQRepo implements DLQRepository
var _ repositories.DLQRepository = (*DLQRepo)(nil)

// DLQRepo implements DLQRepository using PostgreSQL
type DLQRepo struct {
	db *sqlx.DB
}

// NewDLQRepo creates a new dead-letter queue repository
func NewDLQRepo(db *sqlx.DB) *DLQRepo {
	return &DLQRepo{db: db}
}

// Push records a failed log with its failure reason
func (r *DLQRepo) Push(ctx context.Context, entry *entities.DLQEntry) error {
	query := `
		INSERT INTO dlq_entries (raw_log, reason)
		VALUES ($1, $2)
	`

	if _, err := r.db.ExecContext(ctx, query, entry.RawLog, entry.Reason); err != nil {
		return fmt.Errorf("failed to push DLQ entry: %w", err)
	}

	return nil
}

// List returns up to limit entries, oldest first
func (r *DLQRepo) List(ctx context.Context, limit int) ([]entities.DLQEntry, error) {
	var entries []entities.DLQEntry
	query := `SELECT * FROM dlq_entries ORDER BY first_seen_at ASC LIMIT $1`

	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list DLQ entries: %w", err)
	}

	return entries, nil
}

// Count returns the number of pending entries
func (r *DLQRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM dlq_entries`

	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count DLQ entries: %w", err)
	}

	return count, nil
}

// IncrementRetry bumps the retry counter after a failed retry
func (r *DLQRepo) IncrementRetry(ctx context.Context, id int64) error {
	query := `UPDATE dlq_entries SET retry_count = retry_count + 1 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment DLQ retry: %w", err)
	}

	return nil
}

// Delete removes an entry after a successful retry
func (r *DLQRepo) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM dlq_entries WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete DLQ entry: %w", err)
	}

	return nil
}
