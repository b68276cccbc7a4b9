package entities

import (
	"time"
)

// GiftMapping is the canonical record linking an on-chain token id to the
// internal gift id, plus provenance. Exactly one mapping is authoritative
// per token id; the event with the highest (block number, log index) wins.
type GiftMapping struct {
	TokenID      string     `db:"token_id" json:"token_id"`
	GiftID       string     `db:"gift_id" json:"gift_id"`
	Creator      string     `db:"creator" json:"creator"`
	NFTContract  string     `db:"nft_contract" json:"nft_contract"`
	BlockNumber  int64      `db:"block_number" json:"block_number"`
	LogIndex     int        `db:"log_index" json:"log_index"`
	TxHash       string     `db:"tx_hash" json:"tx_hash"`
	BlockTime    *time.Time `db:"block_time" json:"block_time,omitempty"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Gate         string     `db:"gate" json:"gate,omitempty"`
	GiftMessage  string     `db:"gift_message" json:"gift_message,omitempty"`
	RegisteredBy string     `db:"registered_by" json:"registered_by"`
	CreatedAt    time.Time  `db:"created_at" json:"-"`
	UpdatedAt    time.Time  `db:"updated_at" json:"-"`
}

// Supersedes reports whether m is ordered after other under the
// (block number, log index) tie-break rule.
func (m *GiftMapping) Supersedes(other *GiftMapping) bool {
	if m.BlockNumber != other.BlockNumber {
		return m.BlockNumber > other.BlockNumber
	}
	return m.LogIndex > other.LogIndex
}

// SameEvent reports whether two mappings were derived from the same log.
func (m *GiftMapping) SameEvent(other *GiftMapping) bool {
	return m.BlockNumber == other.BlockNumber && m.LogIndex == other.LogIndex
}

// Diverges reports whether the stored record disagrees with a chain-derived
// one in any of the fields the reconciler treats as authoritative.
func (m *GiftMapping) Diverges(chain *GiftMapping) bool {
	return m.GiftID != chain.GiftID ||
		m.BlockNumber != chain.BlockNumber ||
		m.TxHash != chain.TxHash
}

// MappingStats holds store-level aggregates for the status surface.
type MappingStats struct {
	TotalMappings       int64 `db:"total_mappings" json:"total_mappings"`
	LatestMappedBlock   int64 `db:"latest_mapped_block" json:"latest_mapped_block"`
	EarliestMappedBlock int64 `db:"earliest_mapped_block" json:"earliest_mapped_block"`
	LagSeconds          int64 `db:"lag_seconds" json:"lag_seconds"`
	DLQCount            int64 `db:"dlq_count" json:"dlq_count"`
}
