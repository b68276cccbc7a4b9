package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/testutil"
)

type fakeBatchController struct {
	mu      sync.Mutex
	errors  int
	shrinks int
}

func (f *fakeBatchController) ConsecutiveErrors() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors
}

func (f *fakeBatchController) Shrink() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shrinks++
}

func (f *fakeBatchController) Shrinks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shrinks
}

type fakeTransportResetter struct {
	mu     sync.Mutex
	resets int
}

func (f *fakeTransportResetter) ResetTransport() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeTransportResetter) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

type fakeReconcileTrigger struct {
	mu       sync.Mutex
	triggers int
}

func (f *fakeReconcileTrigger) TriggerNow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
}

func (f *fakeReconcileTrigger) Triggers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers
}

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		Interval:            time.Hour,
		LagWarnSeconds:      120,
		LagCriticalSeconds:  300,
		LagEmergencySeconds: 900,
		DLQWarnCount:        10,
		DLQCriticalCount:    50,
		BatchErrorsWarn:     3,
		BatchErrorsCritical: 5,
		SustainWarn:         2,
		SustainCritical:     4,
		SustainEmergency:    6,
		ActionCooldown:      5 * time.Minute,
	}
}

type healthFixture struct {
	service    *HealthService
	mappings   *testutil.MockMappingRepository
	batch      *fakeBatchController
	transport  *fakeTransportResetter
	reconciler *fakeReconcileTrigger
	clock      time.Time
}

func newHealthFixture(t *testing.T, lagSeconds int64) *healthFixture {
	t.Helper()

	f := &healthFixture{
		mappings:   testutil.NewMockMappingRepository(),
		batch:      &fakeBatchController{},
		transport:  &fakeTransportResetter{},
		reconciler: &fakeReconcileTrigger{},
		clock:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.mappings.StatsFunc = func(ctx context.Context) (*entities.MappingStats, error) {
		return &entities.MappingStats{LagSeconds: lagSeconds}, nil
	}

	f.service = NewHealthService(f.mappings, testutil.NewMockDLQRepository(), f.batch, f.transport, f.reconciler, testHealthConfig(), zap.NewNop())
	f.service.now = func() time.Time { return f.clock }
	return f
}

func (f *healthFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestHealth_HealthyTakesNoAction(t *testing.T) {
	f := newHealthFixture(t, 0)

	for i := 0; i < 10; i++ {
		f.service.Poll(context.Background())
	}

	if f.transport.Resets() != 0 || f.batch.Shrinks() != 0 || f.reconciler.Triggers() != 0 {
		t.Error("healthy metrics must not trigger any remediation")
	}
	if got := f.service.Status().ViolationStreaks[metricLag]; got != 0 {
		t.Errorf("lag streak = %d, want 0", got)
	}
}

func TestHealth_WarnTierOnlyObserves(t *testing.T) {
	f := newHealthFixture(t, 150)

	for i := 0; i < 5; i++ {
		f.service.Poll(context.Background())
	}

	if f.transport.Resets() != 0 || f.batch.Shrinks() != 0 {
		t.Error("warn tier must never take corrective action")
	}
	if got := f.service.Status().ViolationStreaks[metricLag]; got != 5 {
		t.Errorf("lag streak = %d, want 5", got)
	}
}

func TestHealth_SustainedCriticalFiresOnceWithinCooldown(t *testing.T) {
	f := newHealthFixture(t, 400)

	// Ten consecutive violating polls inside a single cooldown window
	// must produce exactly one remediation.
	for i := 0; i < 10; i++ {
		f.service.Poll(context.Background())
		f.advance(time.Second)
	}

	if got := f.transport.Resets(); got != 1 {
		t.Errorf("transport resets = %d, want exactly 1", got)
	}
	if got := f.batch.Shrinks(); got != 1 {
		t.Errorf("batch shrinks = %d, want exactly 1", got)
	}
	if got := f.reconciler.Triggers(); got != 0 {
		t.Errorf("reconcile triggers = %d, want 0 at critical tier", got)
	}
}

func TestHealth_BelowSustainDoesNotAct(t *testing.T) {
	f := newHealthFixture(t, 400)

	for i := 0; i < 3; i++ {
		f.service.Poll(context.Background())
	}

	if got := f.transport.Resets(); got != 0 {
		t.Errorf("transport resets = %d, want 0 before sustain threshold", got)
	}
}

func TestHealth_StreakResetsOnRecovery(t *testing.T) {
	f := newHealthFixture(t, 400)

	for i := 0; i < 3; i++ {
		f.service.Poll(context.Background())
	}

	// Metric recovers for one cycle, then violates again.
	f.mappings.StatsFunc = func(ctx context.Context) (*entities.MappingStats, error) {
		return &entities.MappingStats{LagSeconds: 0}, nil
	}
	f.service.Poll(context.Background())
	f.mappings.StatsFunc = func(ctx context.Context) (*entities.MappingStats, error) {
		return &entities.MappingStats{LagSeconds: 400}, nil
	}
	for i := 0; i < 3; i++ {
		f.service.Poll(context.Background())
	}

	if got := f.transport.Resets(); got != 0 {
		t.Errorf("transport resets = %d, want 0 (streak never sustained)", got)
	}
	if got := f.service.Status().ViolationStreaks[metricLag]; got != 3 {
		t.Errorf("lag streak = %d, want 3 after reset and re-violation", got)
	}
}

func TestHealth_CooldownExpiryAllowsNextAction(t *testing.T) {
	f := newHealthFixture(t, 400)

	for i := 0; i < 4; i++ {
		f.service.Poll(context.Background())
	}
	if got := f.transport.Resets(); got != 1 {
		t.Fatalf("transport resets = %d, want 1 after sustain", got)
	}

	f.advance(6 * time.Minute)
	f.service.Poll(context.Background())

	if got := f.transport.Resets(); got != 2 {
		t.Errorf("transport resets = %d, want 2 after cooldown expired", got)
	}
}

func TestHealth_EmergencyForcesReconcile(t *testing.T) {
	f := newHealthFixture(t, 1000)

	// Advance past the cooldown between polls so each sustained tier can
	// act as soon as its streak qualifies.
	for i := 0; i < 6; i++ {
		f.service.Poll(context.Background())
		f.advance(6 * time.Minute)
	}

	if got := f.reconciler.Triggers(); got != 1 {
		t.Errorf("reconcile triggers = %d, want 1 at emergency tier", got)
	}
	if f.transport.Resets() == 0 || f.batch.Shrinks() == 0 {
		t.Error("emergency tier must also reset transport and shrink batching")
	}
}

func TestHealth_DLQCriticalActs(t *testing.T) {
	f := newHealthFixture(t, 0)

	dlq := testutil.NewMockDLQRepository()
	dlq.CountFunc = func(ctx context.Context) (int64, error) { return 60, nil }
	f.service.dlqRepo = dlq

	for i := 0; i < 4; i++ {
		f.service.Poll(context.Background())
	}

	if got := f.transport.Resets(); got != 1 {
		t.Errorf("transport resets = %d, want 1 for critical DLQ size", got)
	}
}

func TestHealth_BatchErrorStreakActs(t *testing.T) {
	f := newHealthFixture(t, 0)
	f.batch.errors = 5

	for i := 0; i < 4; i++ {
		f.service.Poll(context.Background())
	}

	if got := f.batch.Shrinks(); got != 1 {
		t.Errorf("batch shrinks = %d, want 1 for sustained batch errors", got)
	}
}

func TestHealth_StatusSnapshot(t *testing.T) {
	f := newHealthFixture(t, 150)
	f.service.Poll(context.Background())

	status := f.service.Status()
	if status.LagSeconds != 150 {
		t.Errorf("LagSeconds = %d, want 150", status.LagSeconds)
	}

	// Mutating the snapshot must not leak into the monitor.
	status.ViolationStreaks[metricLag] = 99
	if got := f.service.Status().ViolationStreaks[metricLag]; got == 99 {
		t.Error("Status() returned a shared map")
	}
}
