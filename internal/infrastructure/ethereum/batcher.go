package ethereum

import (
	"strings"
	"sync"
	"time"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
)

// ErrorKind classifies RPC failures for the adaptive batching policy.
type ErrorKind int

const (
	// ErrKindOther covers timeouts, connection resets and anything the
	// classifier does not recognize.
	ErrKindOther ErrorKind = iota

	// ErrKindRateLimit means the provider throttled the request.
	ErrKindRateLimit

	// ErrKindRangeTooLarge means the requested log range exceeded the
	// provider's per-query limits.
	ErrKindRangeTooLarge
)

// Batcher owns the adaptive block-range size used for eth_getLogs queries.
// Failures shrink the range (aggressively for rate-limit and range errors),
// sustained success grows it back by a fixed increment. The mutex exists
// because the health monitor reads error counters from another goroutine.
type Batcher struct {
	mu sync.Mutex

	currentSize uint64
	minSize     uint64
	maxSize     uint64

	growIncrement uint64
	growCooldown  time.Duration

	consecutiveErrors int
	lastErrorAt       time.Time
	lastGrowAt        time.Time

	now func() time.Time
}

// NewBatcher creates a batcher from the indexer batching bounds
func NewBatcher(cfg config.IndexerConfig) *Batcher {
	return &Batcher{
		currentSize:   cfg.BatchInitialSize,
		minSize:       cfg.BatchMinSize,
		maxSize:       cfg.BatchMaxSize,
		growIncrement: cfg.BatchGrowIncrement,
		growCooldown:  cfg.BatchGrowCooldown,
		now:           time.Now,
	}
}

// Size returns the current block-range size
func (b *Batcher) Size() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentSize
}

// ConsecutiveErrors returns the current error streak
func (b *Batcher) ConsecutiveErrors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveErrors
}

// AtMin reports whether the range cannot shrink any further
func (b *Batcher) AtMin() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentSize <= b.minSize
}

// RecordSuccess clears the error streak and, once a full cooldown window
// has passed with no errors, grows the range by the configured increment.
func (b *Batcher) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveErrors = 0

	now := b.now()
	if !b.lastErrorAt.IsZero() && now.Sub(b.lastErrorAt) < b.growCooldown {
		return
	}
	if now.Sub(b.lastGrowAt) < b.growCooldown {
		return
	}

	if b.currentSize < b.maxSize {
		b.currentSize += b.growIncrement
		if b.currentSize > b.maxSize {
			b.currentSize = b.maxSize
		}
		b.lastGrowAt = now
	}
}

// RecordFailure shrinks the range according to the error kind: halve for
// rate-limit and range errors, 25% off otherwise, never below minSize.
func (b *Batcher) RecordFailure(kind ErrorKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveErrors++
	b.lastErrorAt = b.now()

	switch kind {
	case ErrKindRateLimit, ErrKindRangeTooLarge:
		b.currentSize /= 2
	default:
		b.currentSize = b.currentSize * 3 / 4
	}

	if b.currentSize < b.minSize {
		b.currentSize = b.minSize
	}
}

// Shrink forces the range to its minimum. Remediation hook for the
// health monitor.
func (b *Batcher) Shrink() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentSize = b.minSize
}

// ClassifyError maps a provider error message onto an ErrorKind. Providers
// expose no stable error codes for these conditions, so this is a substring
// heuristic over the messages seen from common L2 RPC endpoints.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrKindOther
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "exceeded the quota"):
		return ErrKindRateLimit
	case strings.Contains(msg, "block range"),
		strings.Contains(msg, "range is too large"),
		strings.Contains(msg, "query returned more than"),
		strings.Contains(msg, "log response size exceeded"):
		return ErrKindRangeTooLarge
	default:
		return ErrKindOther
	}
}
