package entities

import (
	"time"
)

// Checkpoint ids. Backfill and stream progress are tracked independently.
const (
	CheckpointBackfill = "backfill"
	CheckpointStream   = "stream"
)

// Checkpoint records the last block durably processed by a phase.
// Block numbers are monotonically non-decreasing per id.
type Checkpoint struct {
	ID          string    `db:"id"`
	BlockNumber uint64    `db:"block_number"`
	UpdatedAt   time.Time `db:"updated_at"`
}
