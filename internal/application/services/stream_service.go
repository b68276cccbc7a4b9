package services

import (
	"context"
	"errors"
	"fmt"
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

var errTransportReset = errors.New("transport reset requested")

// StreamService keeps the store current once backfill has caught up.
// It works through a fallback chain of transports: a websocket
// subscription when one is configured, installed server-side filters
// polled over HTTP, and finally plain block-range polling, which every
// RPC provider supports. A failing transport degrades to the next one;
// ResetTransport climbs back to the top of the chain.
type StreamService struct {
	chain          ChainReader
	streamer       ChainStreamer
	processor      *Processor
	checkpointRepo repositories.CheckpointRepository
	config         config.IndexerConfig
	logger         *zap.Logger

	mu        sync.RWMutex
	status    entities.StreamStatus
	pollFails int

	stopCh  chan struct{}
	resetCh chan struct{}
	wg      sync.WaitGroup
}

// NewStreamService creates a stream engine
func NewStreamService(
	chain ChainReader,
	streamer ChainStreamer,
	processor *Processor,
	checkpointRepo repositories.CheckpointRepository,
	cfg config.IndexerConfig,
	logger *zap.Logger,
) *StreamService {
	return &StreamService{
		chain:          chain,
		streamer:       streamer,
		processor:      processor,
		checkpointRepo: checkpointRepo,
		config:         cfg,
		logger:         logger,
		status:         entities.StreamStatus{Mode: entities.StreamModeIdle},
		stopCh:         make(chan struct{}),
		resetCh:        make(chan struct{}),
	}
}

// Start begins streaming from the given block. A persisted stream
// checkpoint ahead of fromBlock wins, so restarts never reprocess more
// than one chunk.
func (s *StreamService) Start(ctx context.Context, fromBlock uint64) error {
	checkpoint, err := s.checkpointRepo.Get(ctx, entities.CheckpointStream)
	if err != nil {
		return fmt.Errorf("failed to load stream checkpoint: %w", err)
	}

	cursor := fromBlock
	if checkpoint > cursor {
		cursor = checkpoint
	}

	s.mu.Lock()
	s.status.Running = true
	s.status.LastBlock = cursor
	s.mu.Unlock()

	s.logger.Info("Starting stream engine", zap.Uint64("from_block", cursor))

	s.wg.Add(1)
	go s.run(ctx, cursor)

	return nil
}

// Stop requests a cooperative stop and waits for the run loop to exit
func (s *StreamService) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()

	s.mu.Lock()
	s.status.Running = false
	s.status.Mode = entities.StreamModeIdle
	s.mu.Unlock()
}

// ResetTransport forces the run loop back to the preferred transport.
// The health monitor calls this when lag suggests a silently dead feed.
func (s *StreamService) ResetTransport() {
	s.mu.Lock()
	select {
	case <-s.resetCh:
	default:
		close(s.resetCh)
	}
	s.mu.Unlock()
}

// Status returns a snapshot of the stream engine
func (s *StreamService) Status() entities.StreamStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ConsecutiveErrors reports how many poll cycles in a row have failed
func (s *StreamService) ConsecutiveErrors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pollFails
}

func (s *StreamService) run(ctx context.Context, cursor uint64) {
	defer s.wg.Done()

	transports := []struct {
		mode entities.StreamMode
		fn   func(context.Context, *uint64) error
	}{
		{entities.StreamModeSubscription, s.runSubscription},
		{entities.StreamModeFilterPoll, s.runFilterPoll},
		{entities.StreamModeRangePoll, s.runRangePoll},
	}

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		s.armReset()
		s.setMode(transports[idx].mode)

		err := transports[idx].fn(ctx, &cursor)
		switch {
		case err == nil:
			return // stopped cooperatively
		case errors.Is(err, errTransportReset):
			s.logger.Info("Transport reset, returning to preferred transport",
				zap.String("from_mode", string(transports[idx].mode)),
			)
			idx = 0
		default:
			s.recordTransportError(err)
			if idx < len(transports)-1 {
				s.logger.Warn("Stream transport failed, degrading",
					zap.String("mode", string(transports[idx].mode)),
					zap.Error(err),
				)
				idx++
			} else {
				// Range poll is the floor; back off and try again.
				s.logger.Error("Range poll failed, retrying",
					zap.Error(err),
				)
				select {
				case <-time.After(s.config.PollInterval):
				case <-ctx.Done():
					return
				case <-s.stopCh:
					return
				}
			}
		}
	}
}

// runSubscription streams over a websocket subscription. Events arrive
// at the head, before finality; the ordered upsert makes reprocessing
// and reorg replacements safe, so delivery can be optimistic.
func (s *StreamService) runSubscription(ctx context.Context, cursor *uint64) error {
	if err := s.catchUp(ctx, cursor); err != nil {
		return fmt.Errorf("catch-up before subscribe: %w", err)
	}

	ch := make(chan types.Log, 256)
	sub, err := s.streamer.SubscribeLogs(ctx, ch)
	if err != nil {
		if errors.Is(err, ethereum.ErrNoSubscription) {
			s.logger.Info("No websocket endpoint configured, using filter polling")
		}
		return err
	}
	defer sub.Unsubscribe()

	s.logger.Info("Subscribed to contract logs", zap.Uint64("from_block", *cursor))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-s.resetSignal():
			return errTransportReset
		case err := <-sub.Err():
			return fmt.Errorf("subscription dropped: %w", err)
		case log := <-ch:
			if err := s.deliver(ctx, []types.Log{log}, cursor); err != nil {
				return err
			}
		}
	}
}

// runFilterPoll installs a server-side log filter and drains it on an
// interval, so only new matches cross the wire.
func (s *StreamService) runFilterPoll(ctx context.Context, cursor *uint64) error {
	filterID, err := s.streamer.NewLogFilter(ctx, *cursor+1)
	if err != nil {
		return fmt.Errorf("failed to install log filter: %w", err)
	}
	defer s.streamer.UninstallFilter(context.WithoutCancel(ctx), filterID)

	s.logger.Info("Installed log filter",
		zap.String("filter_id", filterID),
		zap.Uint64("from_block", *cursor+1),
	)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-s.resetSignal():
			return errTransportReset
		case <-ticker.C:
			logs, err := s.streamer.FilterChanges(ctx, filterID)
			if err != nil {
				// Providers expire idle filters; any failure here means
				// the filter is gone, so fall through to range polling.
				return fmt.Errorf("failed to poll filter changes: %w", err)
			}
			if err := s.deliver(ctx, logs, cursor); err != nil {
				return err
			}
			s.clearPollFails()
		}
	}
}

// runRangePoll reads finalized block ranges on an interval. It is the
// transport of last resort and never degrades further; persistent
// errors surface through ConsecutiveErrors for the health monitor.
func (s *StreamService) runRangePoll(ctx context.Context, cursor *uint64) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// First pass immediately instead of waiting a full interval.
	if err := s.pollRange(ctx, cursor); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-s.resetSignal():
			return errTransportReset
		case <-ticker.C:
			if err := s.pollRange(ctx, cursor); err != nil {
				return err
			}
		}
	}
}

func (s *StreamService) pollRange(ctx context.Context, cursor *uint64) error {
	if err := s.catchUp(ctx, cursor); err != nil {
		s.mu.Lock()
		s.pollFails++
		fails := s.pollFails
		s.mu.Unlock()

		s.logger.Warn("Range poll cycle failed",
			zap.Uint64("cursor", *cursor),
			zap.Int("consecutive_failures", fails),
			zap.Error(err),
		)
		return nil // stay in range poll, the ticker retries
	}
	s.clearPollFails()
	return nil
}

// catchUp processes every finalized block past the cursor
func (s *StreamService) catchUp(ctx context.Context, cursor *uint64) error {
	safe, err := s.chain.SafeProcessingBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve safe block: %w", err)
	}

	if safe <= *cursor {
		return nil
	}

	logs, err := s.chain.GetLogs(ctx, *cursor+1, safe)
	if err != nil {
		return fmt.Errorf("failed to fetch logs for blocks %d-%d: %w", *cursor+1, safe, err)
	}

	result, err := s.processor.ProcessBatch(ctx, logs)
	if err != nil {
		return err
	}

	if err := s.checkpointRepo.Save(ctx, entities.CheckpointStream, safe); err != nil {
		return fmt.Errorf("failed to save stream checkpoint: %w", err)
	}

	metrics.BlocksProcessed.Add(float64(safe - *cursor))
	metrics.LastMappedBlock.Set(float64(safe))
	*cursor = safe

	s.mu.Lock()
	s.status.LastBlock = safe
	s.status.LogsProcessed += int64(result.Processed + result.Duplicates + result.Superseded)
	s.mu.Unlock()

	return nil
}

// deliver processes live logs and advances the in-memory cursor to
// the highest block seen. The durable checkpoint is capped at the
// finality boundary: live deliveries run ahead of the safe head, and
// a restart has to re-scan that provisional window once it finalizes.
func (s *StreamService) deliver(ctx context.Context, logs []types.Log, cursor *uint64) error {
	if len(logs) == 0 {
		return nil
	}

	result, err := s.processor.ProcessBatch(ctx, logs)
	if err != nil {
		return err
	}

	highest := *cursor
	for _, log := range logs {
		if !log.Removed && log.BlockNumber > highest {
			highest = log.BlockNumber
		}
	}

	if highest > *cursor {
		durable := highest
		if safe, err := s.chain.SafeProcessingBlock(ctx); err != nil {
			s.logger.Warn("Safe block unavailable, deferring stream checkpoint", zap.Error(err))
			durable = 0
		} else if durable > safe {
			durable = safe
		}
		if durable > 0 {
			if err := s.checkpointRepo.Save(ctx, entities.CheckpointStream, durable); err != nil {
				return fmt.Errorf("failed to save stream checkpoint: %w", err)
			}
		}
		metrics.LastMappedBlock.Set(float64(highest))
		*cursor = highest
	}

	s.mu.Lock()
	s.status.LastBlock = *cursor
	s.status.LogsProcessed += int64(result.Processed + result.Duplicates + result.Superseded)
	s.mu.Unlock()

	return nil
}

func (s *StreamService) setMode(mode entities.StreamMode) {
	s.mu.Lock()
	s.status.Mode = mode
	s.mu.Unlock()
}

func (s *StreamService) resetSignal() chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resetCh
}

func (s *StreamService) armReset() {
	s.mu.Lock()
	select {
	case <-s.resetCh:
		s.resetCh = make(chan struct{})
	default:
	}
	s.mu.Unlock()
}

func (s *StreamService) recordTransportError(err error) {
	s.mu.Lock()
	s.status.TransportRestarts++
	s.status.LastError = err.Error()
	s.mu.Unlock()
}

func (s *StreamService) clearPollFails() {
	s.mu.Lock()
	s.pollFails = 0
	s.mu.Unlock()
}
