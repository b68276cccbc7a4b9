package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/metrics"
)

// BatchResult summarizes one processed batch of raw logs
type BatchResult struct {
	Processed  int
	Duplicates int
	Updated    int
	Superseded int
	Failed     int
}

// Processor runs raw logs through decode -> ordered upsert -> DLQ routing.
// Backfill, stream and reconciler all share one Processor so every path
// applies the same tie-break and DLQ semantics.
type Processor struct {
	decoder     *ethereum.Decoder
	chain       ChainReader
	mappingRepo repositories.MappingRepository
	dlqRepo     repositories.DLQRepository
	logger      *zap.Logger
}

// NewProcessor creates a batch processor
func NewProcessor(
	decoder *ethereum.Decoder,
	chain ChainReader,
	mappingRepo repositories.MappingRepository,
	dlqRepo repositories.DLQRepository,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		decoder:     decoder,
		chain:       chain,
		mappingRepo: mappingRepo,
		dlqRepo:     dlqRepo,
		logger:      logger,
	}
}

// ProcessBatch decodes and persists a batch of raw logs. Decode failures
// go to the DLQ and never abort the batch; a persistence failure aborts
// the whole batch so the caller does not advance its checkpoint.
func (p *Processor) ProcessBatch(ctx context.Context, logs []types.Log) (*BatchResult, error) {
	result := &BatchResult{}
	if len(logs) == 0 {
		return result, nil
	}

	blockNumbers := make(map[uint64]struct{})
	for _, log := range logs {
		if !log.Removed {
			blockNumbers[log.BlockNumber] = struct{}{}
		}
	}

	// Block time is optional on a mapping, so timestamp failures degrade
	// to nil instead of failing the batch.
	blockTimes, err := p.chain.FetchBlockTimes(ctx, blockNumbers)
	if err != nil {
		p.logger.Warn("Failed to fetch block timestamps",
			zap.Int("blocks", len(blockNumbers)),
			zap.Error(err),
		)
		blockTimes = nil
	}

	for _, log := range logs {
		if log.Removed {
			// Reorged-out delivery from a subscription; the canonical
			// replacement arrives as a separate log.
			continue
		}

		mapping, err := p.decoder.Decode(log)
		if err != nil {
			result.Failed++
			p.pushDLQ(ctx, log, err)
			continue
		}

		if ts, ok := blockTimes[log.BlockNumber]; ok {
			t := ts
			mapping.BlockTime = &t
		}

		outcome, err := p.mappingRepo.Upsert(ctx, mapping)
		if err != nil {
			return result, fmt.Errorf("failed to persist mapping for token %s: %w", mapping.TokenID, err)
		}

		switch outcome {
		case repositories.OutcomeInserted:
			result.Processed++
			metrics.MappingsIndexed.Inc()
		case repositories.OutcomeDuplicate:
			result.Duplicates++
			metrics.Duplicates.Inc()
		case repositories.OutcomeUpdated:
			result.Processed++
			result.Updated++
			metrics.Conflicts.Inc()
		case repositories.OutcomeSuperseded:
			result.Superseded++
		}
	}

	return result, nil
}

func (p *Processor) pushDLQ(ctx context.Context, log types.Log, decodeErr error) {
	metrics.DecodeFailures.Inc()

	raw, err := json.Marshal(log)
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}

	entry := &entities.DLQEntry{
		RawLog: raw,
		Reason: decodeErr.Error(),
	}

	var de *ethereum.DecodeError
	if errors.As(decodeErr, &de) {
		entry.Reason = de.Reason
	}

	if err := p.dlqRepo.Push(ctx, entry); err != nil {
		// Push failure would lose the log entirely, so it is the one
		// DLQ condition worth an error-level line.
		p.logger.Error("Failed to push DLQ entry",
			zap.String("tx_hash", log.TxHash.Hex()),
			zap.Uint64("block", log.BlockNumber),
			zap.Error(err),
		)
	}
}
