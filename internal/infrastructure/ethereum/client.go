package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
)

// FinalityTag selects how irreversible a block number request is.
type FinalityTag string

const (
	TagLatest    FinalityTag = "latest"
	TagSafe      FinalityTag = "safe"
	TagFinalized FinalityTag = "finalized"
)

// ErrNoSubscription is returned when no WebSocket endpoint is configured.
var ErrNoSubscription = fmt.Errorf("subscriptions unavailable: no websocket endpoint configured")

// Health reports reachability for both transport paths. It is always
// populated, never an error.
type Health struct {
	PrimaryOK         bool   `json:"primary_ok"`
	PrimaryBlock      uint64 `json:"primary_block"`
	PrimaryError      string `json:"primary_error,omitempty"`
	SubscriptionOK    bool   `json:"subscription_ok"`
	SubscriptionBlock uint64 `json:"subscription_block"`
	SubscriptionError string `json:"subscription_error,omitempty"`
}

// Client wraps read-only chain access for the gift contract: block numbers
// at finality tags, adaptively batched log range queries, live subscription
// and server-side filters. It owns the Batcher; no other component mutates
// batch sizing.
type Client struct {
	client  *ethclient.Client
	rpcc    *rpc.Client
	ws      *ethclient.Client
	batcher *Batcher
	config  config.EthereumConfig

	contract      common.Address
	eventID       common.Hash
	confirmations uint64

	logger  *zap.Logger
	chainID *big.Int

	workerCount int
}

// NewClient connects to the primary RPC endpoint (required) and the
// WebSocket endpoint (optional; without it the stream engine falls back
// to polling).
func NewClient(cfg config.EthereumConfig, contract config.ContractConfig, icfg config.IndexerConfig, dec *Decoder, logger *zap.Logger) (*Client, error) {
	rpcc, err := rpc.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	client := ethclient.NewClient(rpcc)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Int64())
	}

	var ws *ethclient.Client
	if cfg.WSURL != "" {
		ws, err = ethclient.Dial(cfg.WSURL)
		if err != nil {
			logger.Warn("Failed to connect WebSocket endpoint, subscriptions disabled",
				zap.String("ws_url", cfg.WSURL),
				zap.Error(err),
			)
			ws = nil
		}
	}

	logger.Info("Connected to Ethereum node",
		zap.String("rpc_url", cfg.RPCURL),
		zap.Int64("chain_id", chainID.Int64()),
		zap.Bool("ws_available", ws != nil),
	)

	return &Client{
		client:        client,
		rpcc:          rpcc,
		ws:            ws,
		batcher:       NewBatcher(icfg),
		config:        cfg,
		contract:      dec.Contract(),
		eventID:       dec.EventID(),
		confirmations: contract.Confirmations,
		logger:        logger,
		chainID:       chainID,
		workerCount:   icfg.WorkerCount,
	}, nil
}

// Close closes both client connections
func (c *Client) Close() {
	c.client.Close()
	if c.ws != nil {
		c.ws.Close()
	}
}

// Batcher returns the adaptive batch configuration owner
func (c *Client) Batcher() *Batcher {
	return c.batcher
}

// ChunkSize returns the current adaptive batch span in blocks
func (c *Client) ChunkSize() uint64 {
	return c.batcher.Size()
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// BlockNumberByTag returns the block number for a finality tag
func (c *Client) BlockNumberByTag(ctx context.Context, tag FinalityTag) (uint64, error) {
	switch tag {
	case TagLatest:
		return c.latestBlockNumber(ctx)
	case TagSafe, TagFinalized:
		sentinel := big.NewInt(int64(rpc.SafeBlockNumber))
		if tag == TagFinalized {
			sentinel = big.NewInt(int64(rpc.FinalizedBlockNumber))
		}
		header, err := c.client.HeaderByNumber(ctx, sentinel)
		if err != nil {
			return 0, fmt.Errorf("failed to get %s block: %w", tag, err)
		}
		return header.Number.Uint64(), nil
	default:
		return 0, fmt.Errorf("unknown finality tag: %s", tag)
	}
}

// SafeProcessingBlock returns the finality-safe upper bound for indexing,
// falling back finalized -> safe -> latest-confirmations when a node does
// not support a tag.
func (c *Client) SafeProcessingBlock(ctx context.Context) (uint64, error) {
	if block, err := c.BlockNumberByTag(ctx, TagFinalized); err == nil && block > 0 {
		return block, nil
	}
	if block, err := c.BlockNumberByTag(ctx, TagSafe); err == nil && block > 0 {
		return block, nil
	}

	latest, err := c.latestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if latest < c.confirmations {
		return 0, nil
	}
	return latest - c.confirmations, nil
}

// latestBlockNumber fetches the head block with retries
func (c *Client) latestBlockNumber(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		blockNumber, err = c.client.BlockNumber(ctx)
		if err == nil {
			return blockNumber, nil
		}

		c.logger.Warn("Failed to get latest block number, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			time.Sleep(c.config.RetryDelay)
		}
	}

	return 0, fmt.Errorf("failed to get latest block number after %d retries: %w", c.config.MaxRetries, err)
}

// filterQuery builds the GiftRegistered filter for an inclusive block range
func (c *Client) filterQuery(fromBlock, toBlock *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []common.Address{c.contract},
		Topics: [][]common.Hash{
			{c.eventID},
		},
	}
}

// GetLogs returns all GiftRegistered logs in [from, to]. The range is
// transparently split into sub-ranges of the batcher's current size; a
// failing sub-range shrinks the size and retries until the batcher is at
// its minimum, at which point the error propagates.
func (c *Client) GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	if from > to {
		return nil, nil
	}

	var all []types.Log
	cur := from

	for cur <= to {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		size := c.batcher.Size()
		end := cur + size - 1
		if end > to {
			end = to
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		logs, err := c.client.FilterLogs(reqCtx, c.filterQuery(
			new(big.Int).SetUint64(cur),
			new(big.Int).SetUint64(end),
		))
		cancel()

		if err != nil {
			kind := ClassifyError(err)
			atMin := c.batcher.AtMin()
			c.batcher.RecordFailure(kind)

			if atMin {
				return nil, fmt.Errorf("failed to get logs %d-%d at minimum batch size: %w", cur, end, err)
			}

			c.logger.Warn("Log query failed, shrinking batch",
				zap.Uint64("from", cur),
				zap.Uint64("to", end),
				zap.Uint64("new_size", c.batcher.Size()),
				zap.Error(err),
			)
			continue
		}

		c.batcher.RecordSuccess()
		all = append(all, logs...)
		cur = end + 1
	}

	return all, nil
}

// SubscribeLogs opens a live GiftRegistered subscription over WebSocket.
// Returns ErrNoSubscription when no WS endpoint is available; the caller
// falls back to filter or range polling.
func (c *Client) SubscribeLogs(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error) {
	if c.ws == nil {
		return nil, ErrNoSubscription
	}
	return c.ws.SubscribeFilterLogs(ctx, c.filterQuery(nil, nil), ch)
}

// NewLogFilter installs a server-side log filter starting at fromBlock.
// Installed filters are not exposed by ethclient, so this goes through the
// raw RPC connection.
func (c *Client) NewLogFilter(ctx context.Context, fromBlock uint64) (string, error) {
	arg := map[string]interface{}{
		"fromBlock": hexutil.EncodeUint64(fromBlock),
		"address":   c.contract,
		"topics":    [][]common.Hash{{c.eventID}},
	}

	var id string
	if err := c.rpcc.CallContext(ctx, &id, "eth_newFilter", arg); err != nil {
		return "", fmt.Errorf("failed to install log filter: %w", err)
	}
	return id, nil
}

// FilterChanges drains new logs from an installed filter
func (c *Client) FilterChanges(ctx context.Context, filterID string) ([]types.Log, error) {
	var logs []types.Log
	if err := c.rpcc.CallContext(ctx, &logs, "eth_getFilterChanges", filterID); err != nil {
		return nil, fmt.Errorf("failed to poll log filter: %w", err)
	}
	return logs, nil
}

// UninstallFilter removes an installed filter, ignoring failures; stale
// filters expire server-side anyway.
func (c *Client) UninstallFilter(ctx context.Context, filterID string) {
	var ok bool
	if err := c.rpcc.CallContext(ctx, &ok, "eth_uninstallFilter", filterID); err != nil {
		c.logger.Debug("Failed to uninstall filter", zap.String("filter_id", filterID), zap.Error(err))
	}
}

// CheckHealth probes both transport paths. It never returns an error;
// failures are reported in the Health struct.
func (c *Client) CheckHealth(ctx context.Context) Health {
	var h Health

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	block, err := c.client.BlockNumber(reqCtx)
	cancel()
	if err != nil {
		h.PrimaryError = err.Error()
	} else {
		h.PrimaryOK = true
		h.PrimaryBlock = block
	}

	if c.ws == nil {
		h.SubscriptionError = ErrNoSubscription.Error()
		return h
	}

	reqCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
	block, err = c.ws.BlockNumber(reqCtx)
	cancel()
	if err != nil {
		h.SubscriptionError = err.Error()
	} else {
		h.SubscriptionOK = true
		h.SubscriptionBlock = block
	}

	return h
}

// FetchBlockTimes fetches header timestamps for a set of blocks with
// bounded concurrency
func (c *Client) FetchBlockTimes(ctx context.Context, blockNumbers map[uint64]struct{}) (map[uint64]time.Time, error) {
	timestamps := make(map[uint64]time.Time, len(blockNumbers))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workerCount)

	for blockNum := range blockNumbers {
		blockNum := blockNum
		g.Go(func() error {
			header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNum))
			if err != nil {
				return fmt.Errorf("failed to get header for block %d: %w", blockNum, err)
			}

			mu.Lock()
			timestamps[blockNum] = time.Unix(int64(header.Time), 0).UTC()
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return timestamps, nil
}
