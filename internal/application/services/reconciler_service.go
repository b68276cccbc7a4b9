package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/metrics"
)

// ReconcilerService periodically cross-checks a sample of stored
// mappings against chain state, repairs divergences, and retries dead
// letter queue entries whose decode failures may have been transient.
type ReconcilerService struct {
	chain       ChainReader
	lookup      *ethereum.Lookup
	decoder     *ethereum.Decoder
	mappingRepo repositories.MappingRepository
	dlqRepo     repositories.DLQRepository
	config      config.ReconcilerConfig
	logger      *zap.Logger

	mu     sync.RWMutex
	status entities.ReconcileStatus

	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewReconcilerService creates a reconciler
func NewReconcilerService(
	chain ChainReader,
	decoder *ethereum.Decoder,
	mappingRepo repositories.MappingRepository,
	dlqRepo repositories.DLQRepository,
	cfg config.ReconcilerConfig,
	logger *zap.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		chain:       chain,
		lookup:      ethereum.NewLookup(chain, decoder),
		decoder:     decoder,
		mappingRepo: mappingRepo,
		dlqRepo:     dlqRepo,
		config:      cfg,
		logger:      logger,
		triggerCh:   make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop
func (s *ReconcilerService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop requests a cooperative stop and waits for the loop to exit
func (s *ReconcilerService) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
}

// TriggerNow schedules an immediate pass without waiting for the ticker
func (s *ReconcilerService) TriggerNow() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the most recent pass
func (s *ReconcilerService) Status() entities.ReconcileStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *ReconcilerService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.triggerCh:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single reconciliation pass
func (s *ReconcilerService) RunOnce(ctx context.Context) {
	now := time.Now()
	status := entities.ReconcileStatus{LastRunAt: &now}

	checked, repaired, err := s.verifySample(ctx)
	status.Checked = checked
	status.Repaired = repaired
	if err != nil {
		status.LastError = err.Error()
		s.logger.Error("Sample verification failed", zap.Error(err))
	}

	retried, recovered := s.retryDLQ(ctx)
	status.DLQRetried = retried
	status.DLQRecovered = recovered

	if lag, err := s.lagBlocks(ctx); err == nil {
		status.LagBlocks = lag
	} else if status.LastError == "" {
		status.LastError = err.Error()
	}

	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	s.logger.Info("Reconciliation pass complete",
		zap.Int("checked", checked),
		zap.Int("repaired", repaired),
		zap.Int("dlq_retried", retried),
		zap.Int("dlq_recovered", recovered),
		zap.Int64("lag_blocks", status.LagBlocks),
	)
}

// verifySample re-derives a sample of recently touched mappings from
// chain logs and repairs any divergence, trusting the chain.
func (s *ReconcilerService) verifySample(ctx context.Context) (checked, repaired int, err error) {
	sample, err := s.mappingRepo.Sample(ctx, s.config.SampleSize)
	if err != nil {
		return 0, 0, err
	}

	for i := range sample {
		stored := &sample[i]

		from := uint64(stored.BlockNumber)
		if from > s.config.BlockWindow {
			from -= s.config.BlockWindow
		} else {
			from = 0
		}
		to := uint64(stored.BlockNumber) + s.config.BlockWindow

		derived, err := s.lookup.FindInRange(ctx, stored.TokenID, from, to)
		if err != nil {
			s.logger.Warn("Failed to re-derive mapping",
				zap.String("token_id", stored.TokenID),
				zap.Error(err),
			)
			continue
		}
		checked++

		// A missing result only means the event sits outside the window,
		// not that the stored row is wrong. Repair needs positive proof.
		if derived == nil || !stored.Diverges(derived) {
			continue
		}

		if err := s.mappingRepo.Repair(ctx, derived); err != nil {
			s.logger.Error("Failed to repair diverged mapping",
				zap.String("token_id", stored.TokenID),
				zap.Error(err),
			)
			continue
		}

		repaired++
		metrics.Repairs.Inc()
		s.logger.Warn("Repaired diverged mapping",
			zap.String("token_id", stored.TokenID),
			zap.String("stored_gift_id", stored.GiftID),
			zap.String("chain_gift_id", derived.GiftID),
		)
	}

	return checked, repaired, nil
}

// retryDLQ re-decodes dead letter entries. Entries past the retry cap
// are left in place for operator inspection but no longer retried.
func (s *ReconcilerService) retryDLQ(ctx context.Context) (retried, recovered int) {
	entries, err := s.dlqRepo.List(ctx, s.config.SampleSize)
	if err != nil {
		s.logger.Error("Failed to list DLQ entries", zap.Error(err))
		return 0, 0
	}

	for _, entry := range entries {
		if entry.RetryCount >= s.config.DLQRetryMax {
			continue
		}
		retried++

		var log types.Log
		if err := json.Unmarshal(entry.RawLog, &log); err != nil {
			s.bumpRetry(ctx, entry.ID)
			continue
		}

		mapping, err := s.decoder.Decode(log)
		if err != nil {
			s.bumpRetry(ctx, entry.ID)
			continue
		}

		if _, err := s.mappingRepo.Upsert(ctx, mapping); err != nil {
			s.logger.Error("Failed to persist recovered DLQ mapping",
				zap.Int64("entry_id", entry.ID),
				zap.Error(err),
			)
			continue
		}

		if err := s.dlqRepo.Delete(ctx, entry.ID); err != nil {
			s.logger.Error("Failed to delete recovered DLQ entry",
				zap.Int64("entry_id", entry.ID),
				zap.Error(err),
			)
			continue
		}

		recovered++
		s.logger.Info("Recovered DLQ entry",
			zap.Int64("entry_id", entry.ID),
			zap.String("token_id", mapping.TokenID),
		)
	}

	if count, err := s.dlqRepo.Count(ctx); err == nil {
		metrics.DLQSize.Set(float64(count))
	}

	return retried, recovered
}

func (s *ReconcilerService) bumpRetry(ctx context.Context, id int64) {
	if err := s.dlqRepo.IncrementRetry(ctx, id); err != nil {
		s.logger.Error("Failed to increment DLQ retry count",
			zap.Int64("entry_id", id),
			zap.Error(err),
		)
	}
}

// lagBlocks measures how far the latest stored mapping trails the
// safe processing head.
func (s *ReconcilerService) lagBlocks(ctx context.Context) (int64, error) {
	safe, err := s.chain.SafeProcessingBlock(ctx)
	if err != nil {
		return 0, err
	}

	stats, err := s.mappingRepo.Stats(ctx)
	if err != nil {
		return 0, err
	}

	lag := int64(safe) - stats.LatestMappedBlock
	if lag < 0 {
		lag = 0
	}
	return lag, nil
}
