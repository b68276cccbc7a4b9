package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/metrics"
)

// BackfillService walks the contract's history from its deployment block
// up to the finalized head, persisting a checkpoint after every chunk so
// a restart resumes instead of starting over.
type BackfillService struct {
	chain          ChainReader
	processor      *Processor
	checkpointRepo repositories.CheckpointRepository
	config         config.IndexerConfig
	startBlock     uint64
	logger         *zap.Logger

	mu        sync.RWMutex
	status    entities.BackfillStatus
	startedAt time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBackfillService creates a backfill engine
func NewBackfillService(
	chain ChainReader,
	processor *Processor,
	checkpointRepo repositories.CheckpointRepository,
	cfg config.IndexerConfig,
	deploymentBlock uint64,
	logger *zap.Logger,
) *BackfillService {
	return &BackfillService{
		chain:          chain,
		processor:      processor,
		checkpointRepo: checkpointRepo,
		config:         cfg,
		startBlock:     deploymentBlock,
		logger:         logger,
		status:         entities.BackfillStatus{State: entities.BackfillIdle},
		stopCh:         make(chan struct{}),
	}
}

// Run executes the backfill to completion and blocks until it finishes,
// is stopped, or fails. The returned error is nil when the backfill
// completed or was stopped cooperatively.
func (s *BackfillService) Run(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	checkpoint, err := s.checkpointRepo.Get(ctx, entities.CheckpointBackfill)
	if err != nil {
		return s.fail(fmt.Errorf("failed to load backfill checkpoint: %w", err))
	}

	cursor := s.startBlock
	if checkpoint >= s.startBlock {
		// Checkpoint marks the last fully processed block.
		cursor = checkpoint + 1
	}

	target, err := s.chain.SafeProcessingBlock(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("failed to resolve backfill target: %w", err))
	}

	if cursor > target {
		s.logger.Info("Backfill already complete",
			zap.Uint64("checkpoint", checkpoint),
			zap.Uint64("target", target),
		)
		s.setState(entities.BackfillComplete, cursor, target)
		return nil
	}

	s.logger.Info("Starting backfill",
		zap.Uint64("from_block", cursor),
		zap.Uint64("target_block", target),
	)

	s.mu.Lock()
	s.status = entities.BackfillStatus{
		State:        entities.BackfillRunning,
		StartBlock:   cursor,
		CurrentBlock: cursor,
		TargetBlock:  target,
	}
	s.startedAt = time.Now()
	s.mu.Unlock()

	for cursor <= target {
		select {
		case <-ctx.Done():
			s.setState(entities.BackfillStopped, cursor, target)
			return nil
		case <-s.stopCh:
			s.setState(entities.BackfillStopped, cursor, target)
			return nil
		default:
		}

		chunkEnd := cursor + s.chain.ChunkSize() - 1
		if chunkEnd > target {
			chunkEnd = target
		}

		chunkStarted := time.Now()
		result, err := s.processChunk(ctx, cursor, chunkEnd)
		if err != nil {
			return s.fail(fmt.Errorf("backfill failed at blocks %d-%d: %w", cursor, chunkEnd, err))
		}
		metrics.BatchLatency.Observe(time.Since(chunkStarted).Seconds())

		if err := s.checkpointRepo.Save(ctx, entities.CheckpointBackfill, chunkEnd); err != nil {
			return s.fail(fmt.Errorf("failed to save backfill checkpoint: %w", err))
		}

		s.recordProgress(cursor, chunkEnd, target, result)
		metrics.BlocksProcessed.Add(float64(chunkEnd - cursor + 1))
		metrics.BatchSize.Set(float64(s.chain.ChunkSize()))

		cursor = chunkEnd + 1

		// Brief pause between chunks keeps free-tier RPC endpoints happy.
		if s.config.InterBatchPause > 0 && cursor <= target {
			select {
			case <-time.After(s.config.InterBatchPause):
			case <-s.stopCh:
			case <-ctx.Done():
			}
		}
	}

	s.setState(entities.BackfillComplete, target, target)
	s.logger.Info("Backfill complete",
		zap.Uint64("target_block", target),
		zap.Int64("logs_processed", s.Status().LogsProcessed),
		zap.Duration("elapsed", time.Since(s.startedAt)),
	)
	return nil
}

// Stop requests a cooperative stop and waits for Run to return
func (s *BackfillService) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
}

// Status returns a snapshot of backfill progress
func (s *BackfillService) Status() entities.BackfillStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// processChunk fetches and persists one block range, retrying transient
// failures with exponential backoff before giving up.
func (s *BackfillService) processChunk(ctx context.Context, from, to uint64) (*BatchResult, error) {
	var lastErr error

	for attempt := 0; attempt < s.config.BackfillMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.config.BackfillRetryBase * time.Duration(1<<uint(attempt-1))
			s.logger.Warn("Retrying backfill chunk",
				zap.Uint64("from", from),
				zap.Uint64("to", to),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.stopCh:
				return nil, fmt.Errorf("stopped during retry backoff")
			}
		}

		logs, err := s.chain.GetLogs(ctx, from, to)
		if err != nil {
			lastErr = err
			continue
		}

		result, err := s.processor.ProcessBatch(ctx, logs)
		if err != nil {
			lastErr = err
			continue
		}

		return result, nil
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", s.config.BackfillMaxAttempts, lastErr)
}

func (s *BackfillService) recordProgress(from, to, target uint64, result *BatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.CurrentBlock = to
	s.status.TargetBlock = target
	s.status.LogsProcessed += int64(result.Processed + result.Duplicates + result.Superseded)
	s.status.LogsFailed += int64(result.Failed)
	s.status.BatchesCompleted++

	span := target - s.status.StartBlock + 1
	done := to - s.status.StartBlock + 1
	s.status.PercentComplete = float64(done) / float64(span) * 100

	elapsed := time.Since(s.startedAt).Seconds()
	if elapsed > 0 {
		s.status.BlocksPerSecond = float64(done) / elapsed
		if s.status.BlocksPerSecond > 0 {
			s.status.ETASeconds = int64(float64(target-to) / s.status.BlocksPerSecond)
		}
	}
}

func (s *BackfillService) setState(state entities.BackfillState, current, target uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = state
	s.status.CurrentBlock = current
	s.status.TargetBlock = target
	if state == entities.BackfillComplete {
		s.status.PercentComplete = 100
		s.status.ETASeconds = 0
	}
}

func (s *BackfillService) fail(err error) error {
	s.mu.Lock()
	s.status.State = entities.BackfillFailed
	s.status.LastError = err.Error()
	s.mu.Unlock()
	s.logger.Error("Backfill failed", zap.Error(err))
	return err
}
