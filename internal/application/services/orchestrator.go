package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
)

// Engine phases
const (
	PhaseStarting  = "starting"
	PhaseBackfill  = "backfill"
	PhaseStreaming = "streaming"
	PhaseStopped   = "stopped"
)

const engineRecoveryDelay = 30 * time.Second

// Orchestrator owns the engine lifecycle: it verifies chain
// reachability, runs the backfill to completion, hands over to the
// stream engine, and schedules the reconciler and health monitor for
// the lifetime of the process. Shutdown is an explicit call; wiring OS
// signals to it is the host process's job.
type Orchestrator struct {
	chain       ChainReader
	backfill    *BackfillService
	stream      *StreamService
	reconciler  *ReconcilerService
	health      *HealthService
	mappingRepo repositories.MappingRepository
	logger      *zap.Logger

	mu      sync.RWMutex
	phase   string
	running bool

	recoveryDelay time.Duration

	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewOrchestrator creates the engine orchestrator
func NewOrchestrator(
	chain ChainReader,
	backfill *BackfillService,
	stream *StreamService,
	reconciler *ReconcilerService,
	health *HealthService,
	mappingRepo repositories.MappingRepository,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		chain:       chain,
		backfill:    backfill,
		stream:      stream,
		reconciler:  reconciler,
		health:      health,
		mappingRepo: mappingRepo,
		logger:      logger,
		phase:       PhaseStarting,
		stopCh:      make(chan struct{}),

		recoveryDelay: engineRecoveryDelay,
	}
}

// Start brings the engine up. It fails fast when the primary RPC path
// is unreachable and otherwise returns once the background tasks are
// scheduled; backfill and streaming proceed asynchronously.
func (o *Orchestrator) Start(ctx context.Context) error {
	health := o.chain.CheckHealth(ctx)
	if !health.PrimaryOK {
		return fmt.Errorf("primary RPC path unreachable: %s", health.PrimaryError)
	}

	o.logger.Info("Chain client reachable",
		zap.Uint64("primary_block", health.PrimaryBlock),
		zap.Bool("subscription_available", health.SubscriptionOK),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	o.reconciler.Start(runCtx)
	o.health.Start(runCtx)

	o.wg.Add(1)
	go o.runEngine(runCtx)

	return nil
}

// runEngine drives the backfill-then-stream sequence. A failed
// backfill run is retried from its checkpoint after a delay, and a
// failed stream handover is retried the same way, so transient
// outages never require operator intervention. The phase only reports
// streaming once the stream engine is actually running.
func (o *Orchestrator) runEngine(ctx context.Context) {
	defer o.wg.Done()

	for {
		o.setPhase(PhaseBackfill)

		err := o.backfill.Run(ctx)
		if err == nil {
			break
		}

		o.logger.Error("Backfill run failed, will resume from checkpoint",
			zap.Duration("retry_in", o.recoveryDelay),
			zap.Error(err),
		)

		if !o.pause(ctx) {
			return
		}
	}

	status := o.backfill.Status()
	if status.State != entities.BackfillComplete {
		// Stopped cooperatively mid-backfill.
		return
	}

	for {
		err := o.stream.Start(ctx, status.TargetBlock)
		if err == nil {
			o.setPhase(PhaseStreaming)
			return
		}

		o.logger.Error("Failed to start stream engine, will retry",
			zap.Duration("retry_in", o.recoveryDelay),
			zap.Error(err),
		)

		if !o.pause(ctx) {
			return
		}
	}
}

// pause sleeps for the recovery delay, returning false when the
// engine is shutting down.
func (o *Orchestrator) pause(ctx context.Context) bool {
	select {
	case <-time.After(o.recoveryDelay):
		return true
	case <-ctx.Done():
		return false
	case <-o.stopCh:
		return false
	}
}

// Shutdown stops every component cooperatively, waiting for in-flight
// batches to finish. Safe to call more than once.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	o.logger.Info("Shutting down engine")

	close(o.stopCh)
	o.health.Stop()
	o.reconciler.Stop()
	o.backfill.Stop()
	o.stream.Stop()

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	o.wg.Wait()
	o.setPhase(PhaseStopped)
	o.logger.Info("Engine stopped")
}

// Status assembles the aggregate engine status for the read surface
func (o *Orchestrator) Status(ctx context.Context) entities.EngineStatus {
	o.mu.RLock()
	status := entities.EngineStatus{
		Running: o.running,
		Phase:   o.phase,
	}
	o.mu.RUnlock()

	status.Backfill = o.backfill.Status()
	status.Stream = o.stream.Status()
	status.Reconcile = o.reconciler.Status()
	status.Health = o.health.Status()

	if stats, err := o.mappingRepo.Stats(ctx); err == nil {
		status.Store = *stats
	} else {
		o.logger.Warn("Failed to read store stats for status", zap.Error(err))
	}

	return status
}

func (o *Orchestrator) setPhase(phase string) {
	o.mu.Lock()
	o.phase = phase
	o.mu.Unlock()

	o.logger.Info("Engine phase transition", zap.String("phase", phase))
}
