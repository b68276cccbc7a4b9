package services

import (
	"context"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
)

// ChainReader is the request-path chain access the engine services need.
// *ethereum.Client satisfies it; tests substitute fakes.
type ChainReader interface {
	SafeProcessingBlock(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error)
	FetchBlockTimes(ctx context.Context, blockNumbers map[uint64]struct{}) (map[uint64]time.Time, error)
	CheckHealth(ctx context.Context) ethereum.Health
	ChunkSize() uint64
}

// ChainStreamer is the live-delivery chain access used by the stream
// engine's transport fallback chain.
type ChainStreamer interface {
	SubscribeLogs(ctx context.Context, ch chan<- types.Log) (goethereum.Subscription, error)
	NewLogFilter(ctx context.Context, fromBlock uint64) (string, error)
	FilterChanges(ctx context.Context, filterID string) ([]types.Log, error)
	UninstallFilter(ctx context.Context, filterID string)
}
