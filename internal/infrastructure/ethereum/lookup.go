package ethereum

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
)

// LogSource is the minimal chain access a lookup needs. *Client satisfies
// it; tests substitute a fake.
type LogSource interface {
	GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error)
}

// Lookup re-derives gift mappings straight from the chain, independent of
// anything the store believes. The reconciler uses it for cross-checks and
// the API uses it for chain read-mode and verification.
type Lookup struct {
	source  LogSource
	decoder *Decoder
}

// NewLookup creates a chain-side mapping lookup
func NewLookup(source LogSource, decoder *Decoder) *Lookup {
	return &Lookup{source: source, decoder: decoder}
}

// FindInRange scans [from, to] for the highest-ordered registration of
// tokenID. Returns nil when no event for the token exists in the range.
// Logs that fail decoding are skipped; this is a read path, the indexing
// pipeline owns DLQ routing.
func (l *Lookup) FindInRange(ctx context.Context, tokenID string, from, to uint64) (*entities.GiftMapping, error) {
	logs, err := l.source.GetLogs(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs for token %s: %w", tokenID, err)
	}

	var best *entities.GiftMapping
	for _, log := range logs {
		m, err := l.decoder.Decode(log)
		if err != nil {
			continue
		}
		if m.TokenID != tokenID {
			continue
		}
		if best == nil || m.Supersedes(best) {
			best = m
		}
	}

	return best, nil
}
