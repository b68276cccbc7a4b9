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

// Remediation tiers, ordered by severity
const (
	tierNone = iota
	tierWarn
	tierCritical
	tierEmergency
)

const (
	metricLag         = "lag"
	metricDLQ         = "dlq"
	metricBatchErrors = "batch_errors"
)

// BatchController is the adaptive batching surface the monitor can act
// on. *ethereum.Batcher satisfies it.
type BatchController interface {
	ConsecutiveErrors() int
	Shrink()
}

// TransportResetter forces a stream transport back to its preferred
// strategy. *StreamService satisfies it.
type TransportResetter interface {
	ResetTransport()
}

// ReconcileTrigger schedules an out-of-band reconciliation pass.
// *ReconcilerService satisfies it.
type ReconcileTrigger interface {
	TriggerNow()
}

// HealthService polls lag, DLQ size and batch error streaks against
// tiered thresholds and takes escalating remediation actions: the warn
// tier only observes, critical resets the stream transport and shrinks
// batching, emergency additionally forces a reconciliation pass. A
// tier acts only after its violation has been sustained for enough
// consecutive polls, and a per-metric cooldown stops the same action
// firing every cycle. The monitor never restarts the process.
type HealthService struct {
	mappingRepo repositories.MappingRepository
	dlqRepo     repositories.DLQRepository
	batch       BatchController
	transport   TransportResetter
	reconciler  ReconcileTrigger
	config      config.HealthConfig
	logger      *zap.Logger

	mu          sync.RWMutex
	status      entities.HealthStatus
	lastActions map[string]time.Time

	now func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHealthService creates a health monitor
func NewHealthService(
	mappingRepo repositories.MappingRepository,
	dlqRepo repositories.DLQRepository,
	batch BatchController,
	transport TransportResetter,
	reconciler ReconcileTrigger,
	cfg config.HealthConfig,
	logger *zap.Logger,
) *HealthService {
	return &HealthService{
		mappingRepo: mappingRepo,
		dlqRepo:     dlqRepo,
		batch:       batch,
		transport:   transport,
		reconciler:  reconciler,
		config:      cfg,
		logger:      logger,
		status: entities.HealthStatus{
			ViolationStreaks: make(map[string]int),
			LastActions:      make(map[string]int64),
		},
		lastActions: make(map[string]time.Time),
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic poll loop
func (s *HealthService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop requests a cooperative stop and waits for the loop to exit
func (s *HealthService) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
}

// Status returns the monitor's current view
func (s *HealthService) Status() entities.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.status
	snapshot.ViolationStreaks = make(map[string]int, len(s.status.ViolationStreaks))
	for k, v := range s.status.ViolationStreaks {
		snapshot.ViolationStreaks[k] = v
	}
	snapshot.LastActions = make(map[string]int64, len(s.status.LastActions))
	for k, v := range s.status.LastActions {
		snapshot.LastActions[k] = v
	}
	return snapshot
}

func (s *HealthService) run(ctx context.Context) {
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
			s.Poll(ctx)
		}
	}
}

// Poll runs a single evaluation cycle
func (s *HealthService) Poll(ctx context.Context) {
	lag, dlqCount := s.collect(ctx)
	batchErrors := s.batch.ConsecutiveErrors()

	s.mu.Lock()
	s.status.LagSeconds = lag
	s.status.DLQCount = dlqCount
	s.status.ConsecutiveErrors = batchErrors
	s.mu.Unlock()

	metrics.LagSeconds.Set(float64(lag))
	metrics.DLQSize.Set(float64(dlqCount))

	s.evaluate(metricLag, fmt.Sprintf("%ds", lag), s.lagTier(lag))
	s.evaluate(metricDLQ, fmt.Sprintf("%d entries", dlqCount), s.dlqTier(dlqCount))
	s.evaluate(metricBatchErrors, fmt.Sprintf("%d consecutive", batchErrors), s.batchTier(batchErrors))
}

func (s *HealthService) collect(ctx context.Context) (lag, dlqCount int64) {
	stats, err := s.mappingRepo.Stats(ctx)
	if err != nil {
		s.logger.Error("Failed to read store stats", zap.Error(err))
	} else {
		lag = stats.LagSeconds
	}

	count, err := s.dlqRepo.Count(ctx)
	if err != nil {
		s.logger.Error("Failed to count DLQ entries", zap.Error(err))
	} else {
		dlqCount = count
	}

	return lag, dlqCount
}

func (s *HealthService) lagTier(lag int64) int {
	switch {
	case lag >= s.config.LagEmergencySeconds:
		return tierEmergency
	case lag >= s.config.LagCriticalSeconds:
		return tierCritical
	case lag >= s.config.LagWarnSeconds:
		return tierWarn
	}
	return tierNone
}

func (s *HealthService) dlqTier(count int64) int {
	switch {
	case count >= s.config.DLQCriticalCount:
		return tierCritical
	case count >= s.config.DLQWarnCount:
		return tierWarn
	}
	return tierNone
}

func (s *HealthService) batchTier(errors int) int {
	switch {
	case errors >= s.config.BatchErrorsCritical:
		return tierCritical
	case errors >= s.config.BatchErrorsWarn:
		return tierWarn
	}
	return tierNone
}

// evaluate updates the metric's violation streak and fires the highest
// tier whose sustain requirement the streak satisfies.
func (s *HealthService) evaluate(metric, value string, tier int) {
	s.mu.Lock()
	if tier == tierNone {
		s.status.ViolationStreaks[metric] = 0
		s.mu.Unlock()
		return
	}
	s.status.ViolationStreaks[metric]++
	streak := s.status.ViolationStreaks[metric]
	s.mu.Unlock()

	actionTier := tierNone
	switch {
	case tier >= tierEmergency && streak >= s.config.SustainEmergency:
		actionTier = tierEmergency
	case tier >= tierCritical && streak >= s.config.SustainCritical:
		actionTier = tierCritical
	case streak >= s.config.SustainWarn:
		actionTier = tierWarn
	}

	if actionTier == tierNone {
		return
	}

	if actionTier == tierWarn {
		s.logger.Warn("Health threshold violated",
			zap.String("metric", metric),
			zap.String("value", value),
			zap.Int("streak", streak),
		)
		return
	}

	if !s.cooldownElapsed(metric) {
		return
	}

	s.remediate(metric, value, actionTier, streak)
}

func (s *HealthService) cooldownElapsed(metric string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastActions[metric]
	if ok && s.now().Sub(last) < s.config.ActionCooldown {
		return false
	}
	s.lastActions[metric] = s.now()
	s.status.LastActions[metric] = s.now().Unix()
	return true
}

// remediate runs the tier's corrective action. Failures here are only
// logged; the next poll cycle re-evaluates.
func (s *HealthService) remediate(metric, value string, tier, streak int) {
	tierName := "critical"
	if tier == tierEmergency {
		tierName = "emergency"
	}

	s.logger.Error("Health remediation triggered",
		zap.String("metric", metric),
		zap.String("value", value),
		zap.String("tier", tierName),
		zap.Int("streak", streak),
	)
	metrics.Remediations.WithLabelValues(metric, tierName).Inc()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Remediation action panicked",
				zap.String("metric", metric),
				zap.Any("panic", r),
			)
		}
	}()

	s.transport.ResetTransport()
	s.batch.Shrink()
	if tier == tierEmergency {
		s.reconciler.TriggerNow()
	}
}
