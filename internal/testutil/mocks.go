package testutil

import (
	"context"
	"sync"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MockMappingRepository is an in-memory MappingRepository that applies
// the same ordering tie-break as the real store, so idempotence and
// ordering behavior can be tested without a database.
type MockMappingRepository struct {
	mu       sync.RWMutex
	Mappings map[string]*entities.GiftMapping

	// Function hooks for custom behavior
	UpsertFunc func(ctx context.Context, m *entities.GiftMapping) (repositories.UpsertOutcome, error)
	RepairFunc func(ctx context.Context, m *entities.GiftMapping) error
	GetFunc    func(ctx context.Context, tokenID string) (*entities.GiftMapping, error)
	SampleFunc func(ctx context.Context, limit int) ([]entities.GiftMapping, error)
	StatsFunc  func(ctx context.Context) (*entities.MappingStats, error)

	// Call tracking
	Calls []MockCall
}

var _ repositories.MappingRepository = (*MockMappingRepository)(nil)

func NewMockMappingRepository() *MockMappingRepository {
	return &MockMappingRepository{
		Mappings: make(map[string]*entities.GiftMapping),
		Calls:    make([]MockCall, 0),
	}
}

func (m *MockMappingRepository) Upsert(ctx context.Context, mapping *entities.GiftMapping) (repositories.UpsertOutcome, error) {
	m.record("Upsert", mapping)

	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, mapping)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.Mappings[mapping.TokenID]
	switch {
	case !ok:
		cp := *mapping
		m.Mappings[mapping.TokenID] = &cp
		return repositories.OutcomeInserted, nil
	case stored.SameEvent(mapping):
		return repositories.OutcomeDuplicate, nil
	case mapping.Supersedes(stored):
		cp := *mapping
		m.Mappings[mapping.TokenID] = &cp
		return repositories.OutcomeUpdated, nil
	default:
		return repositories.OutcomeSuperseded, nil
	}
}

func (m *MockMappingRepository) Repair(ctx context.Context, mapping *entities.GiftMapping) error {
	m.record("Repair", mapping)

	if m.RepairFunc != nil {
		return m.RepairFunc(ctx, mapping)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mapping
	m.Mappings[mapping.TokenID] = &cp
	return nil
}

func (m *MockMappingRepository) Get(ctx context.Context, tokenID string) (*entities.GiftMapping, error) {
	m.record("Get", tokenID)

	if m.GetFunc != nil {
		return m.GetFunc(ctx, tokenID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.Mappings[tokenID]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (m *MockMappingRepository) Sample(ctx context.Context, limit int) ([]entities.GiftMapping, error) {
	m.record("Sample", limit)

	if m.SampleFunc != nil {
		return m.SampleFunc(ctx, limit)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.GiftMapping, 0, len(m.Mappings))
	for _, stored := range m.Mappings {
		if len(result) >= limit {
			break
		}
		result = append(result, *stored)
	}
	return result, nil
}

func (m *MockMappingRepository) Stats(ctx context.Context) (*entities.MappingStats, error) {
	m.record("Stats", nil)

	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &entities.MappingStats{TotalMappings: int64(len(m.Mappings))}
	for _, stored := range m.Mappings {
		if stored.BlockNumber > stats.LatestMappedBlock {
			stats.LatestMappedBlock = stored.BlockNumber
		}
		if stats.EarliestMappedBlock == 0 || stored.BlockNumber < stats.EarliestMappedBlock {
			stats.EarliestMappedBlock = stored.BlockNumber
		}
	}
	return stats, nil
}

func (m *MockMappingRepository) record(method string, arg interface{}) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: []interface{}{arg}})
	m.mu.Unlock()
}

// MockCheckpointRepository is an in-memory CheckpointRepository
type MockCheckpointRepository struct {
	mu          sync.RWMutex
	Checkpoints map[string]uint64

	GetFunc  func(ctx context.Context, id string) (uint64, error)
	SaveFunc func(ctx context.Context, id string, blockNumber uint64) error

	Calls []MockCall
}

var _ repositories.CheckpointRepository = (*MockCheckpointRepository)(nil)

func NewMockCheckpointRepository() *MockCheckpointRepository {
	return &MockCheckpointRepository{
		Checkpoints: make(map[string]uint64),
		Calls:       make([]MockCall, 0),
	}
}

func (m *MockCheckpointRepository) Get(ctx context.Context, id string) (uint64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Get", Args: []interface{}{id}})
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Checkpoints[id], nil
}

func (m *MockCheckpointRepository) Save(ctx context.Context, id string, blockNumber uint64) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Save", Args: []interface{}{id, blockNumber}})
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, id, blockNumber)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if blockNumber > m.Checkpoints[id] {
		m.Checkpoints[id] = blockNumber
	}
	return nil
}

// MockDLQRepository is an in-memory DLQRepository
type MockDLQRepository struct {
	mu      sync.RWMutex
	Entries []entities.DLQEntry
	nextID  int64

	PushFunc           func(ctx context.Context, entry *entities.DLQEntry) error
	ListFunc           func(ctx context.Context, limit int) ([]entities.DLQEntry, error)
	CountFunc          func(ctx context.Context) (int64, error)
	IncrementRetryFunc func(ctx context.Context, id int64) error
	DeleteFunc         func(ctx context.Context, id int64) error

	Calls []MockCall
}

var _ repositories.DLQRepository = (*MockDLQRepository)(nil)

func NewMockDLQRepository() *MockDLQRepository {
	return &MockDLQRepository{
		Entries: make([]entities.DLQEntry, 0),
		Calls:   make([]MockCall, 0),
	}
}

func (m *MockDLQRepository) Push(ctx context.Context, entry *entities.DLQEntry) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Push", Args: []interface{}{entry}})
	m.mu.Unlock()

	if m.PushFunc != nil {
		return m.PushFunc(ctx, entry)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	if entry.FirstSeenAt.IsZero() {
		entry.FirstSeenAt = time.Now()
	}
	m.Entries = append(m.Entries, *entry)
	return nil
}

func (m *MockDLQRepository) List(ctx context.Context, limit int) ([]entities.DLQEntry, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "List", Args: []interface{}{limit}})
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	end := limit
	if end > len(m.Entries) {
		end = len(m.Entries)
	}
	result := make([]entities.DLQEntry, end)
	copy(result, m.Entries[:end])
	return result, nil
}

func (m *MockDLQRepository) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Count", Args: nil})
	m.mu.Unlock()

	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.Entries)), nil
}

func (m *MockDLQRepository) IncrementRetry(ctx context.Context, id int64) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "IncrementRetry", Args: []interface{}{id}})
	m.mu.Unlock()

	if m.IncrementRetryFunc != nil {
		return m.IncrementRetryFunc(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			m.Entries[i].RetryCount++
		}
	}
	return nil
}

func (m *MockDLQRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Delete", Args: []interface{}{id}})
	m.mu.Unlock()

	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			break
		}
	}
	return nil
}

// MockChainReader simulates read-path chain access. Without hooks it
// serves Logs filtered by block range, SafeBlock as the processing
// head, and BlockTimes for timestamp lookups.
type MockChainReader struct {
	mu sync.RWMutex

	SafeBlock  uint64
	Logs       []types.Log
	BlockTimes map[uint64]time.Time
	Chunk      uint64

	SafeProcessingBlockFunc func(ctx context.Context) (uint64, error)
	GetLogsFunc             func(ctx context.Context, from, to uint64) ([]types.Log, error)
	FetchBlockTimesFunc     func(ctx context.Context, blockNumbers map[uint64]struct{}) (map[uint64]time.Time, error)
	CheckHealthFunc         func(ctx context.Context) ethereum.Health

	Calls []MockCall
}

func NewMockChainReader() *MockChainReader {
	return &MockChainReader{
		BlockTimes: make(map[uint64]time.Time),
		Chunk:      500,
		Calls:      make([]MockCall, 0),
	}
}

func (m *MockChainReader) SafeProcessingBlock(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "SafeProcessingBlock", Args: nil})
	m.mu.Unlock()

	if m.SafeProcessingBlockFunc != nil {
		return m.SafeProcessingBlockFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.SafeBlock, nil
}

func (m *MockChainReader) GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetLogs", Args: []interface{}{from, to}})
	m.mu.Unlock()

	if m.GetLogsFunc != nil {
		return m.GetLogsFunc(ctx, from, to)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]types.Log, 0)
	for _, log := range m.Logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			result = append(result, log)
		}
	}
	return result, nil
}

func (m *MockChainReader) FetchBlockTimes(ctx context.Context, blockNumbers map[uint64]struct{}) (map[uint64]time.Time, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "FetchBlockTimes", Args: []interface{}{blockNumbers}})
	m.mu.Unlock()

	if m.FetchBlockTimesFunc != nil {
		return m.FetchBlockTimesFunc(ctx, blockNumbers)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[uint64]time.Time)
	for bn := range blockNumbers {
		if ts, ok := m.BlockTimes[bn]; ok {
			result[bn] = ts
		}
	}
	return result, nil
}

func (m *MockChainReader) CheckHealth(ctx context.Context) ethereum.Health {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "CheckHealth", Args: nil})
	m.mu.Unlock()

	if m.CheckHealthFunc != nil {
		return m.CheckHealthFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return ethereum.Health{PrimaryOK: true, PrimaryBlock: m.SafeBlock}
}

func (m *MockChainReader) ChunkSize() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Chunk
}

// AddLog appends a raw log to the mock's canonical log set
func (m *MockChainReader) AddLog(log types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, log)
}

// SetSafeBlock moves the finality-safe head
func (m *MockChainReader) SetSafeBlock(block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SafeBlock = block
}

// MockSubscription is a controllable goethereum.Subscription
type MockSubscription struct {
	errCh        chan error
	unsubscribed bool
	mu           sync.Mutex
}

var _ goethereum.Subscription = (*MockSubscription)(nil)

func NewMockSubscription() *MockSubscription {
	return &MockSubscription{errCh: make(chan error, 1)}
}

func (s *MockSubscription) Err() <-chan error {
	return s.errCh
}

func (s *MockSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = true
}

// Fail injects a transport error, as a dropped websocket would
func (s *MockSubscription) Fail(err error) {
	s.errCh <- err
}

// Unsubscribed reports whether Unsubscribe was called
func (s *MockSubscription) Unsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

// MockChainStreamer simulates the live-delivery transports. Without
// hooks, subscriptions are unavailable and filters return no changes,
// which exercises the fallback chain end to end.
type MockChainStreamer struct {
	mu sync.RWMutex

	SubscribeLogsFunc   func(ctx context.Context, ch chan<- types.Log) (goethereum.Subscription, error)
	NewLogFilterFunc    func(ctx context.Context, fromBlock uint64) (string, error)
	FilterChangesFunc   func(ctx context.Context, filterID string) ([]types.Log, error)
	UninstallFilterFunc func(ctx context.Context, filterID string)

	Calls []MockCall
}

func NewMockChainStreamer() *MockChainStreamer {
	return &MockChainStreamer{Calls: make([]MockCall, 0)}
}

func (m *MockChainStreamer) SubscribeLogs(ctx context.Context, ch chan<- types.Log) (goethereum.Subscription, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "SubscribeLogs", Args: nil})
	m.mu.Unlock()

	if m.SubscribeLogsFunc != nil {
		return m.SubscribeLogsFunc(ctx, ch)
	}
	return nil, ethereum.ErrNoSubscription
}

func (m *MockChainStreamer) NewLogFilter(ctx context.Context, fromBlock uint64) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "NewLogFilter", Args: []interface{}{fromBlock}})
	m.mu.Unlock()

	if m.NewLogFilterFunc != nil {
		return m.NewLogFilterFunc(ctx, fromBlock)
	}
	return "0x1", nil
}

func (m *MockChainStreamer) FilterChanges(ctx context.Context, filterID string) ([]types.Log, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "FilterChanges", Args: []interface{}{filterID}})
	m.mu.Unlock()

	if m.FilterChangesFunc != nil {
		return m.FilterChangesFunc(ctx, filterID)
	}
	return nil, nil
}

func (m *MockChainStreamer) UninstallFilter(ctx context.Context, filterID string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "UninstallFilter", Args: []interface{}{filterID}})
	m.mu.Unlock()

	if m.UninstallFilterFunc != nil {
		m.UninstallFilterFunc(ctx, filterID)
	}
}

// CallCount returns how many times a method was recorded
func (m *MockChainStreamer) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.Calls {
		if c.Method == method {
			count++
		}
	}
	return count
}
