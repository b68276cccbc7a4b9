package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/cache"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
)

// MappingService serves tokenId -> gift mapping lookups. Depending on
// the configured read mode they come from the store or are re-derived
// from chain logs on demand.
type MappingService struct {
	mappingRepo repositories.MappingRepository
	chain       ChainReader
	lookup      *ethereum.Lookup
	cache       *cache.RedisCache
	config      config.APIConfig
	startBlock  uint64
	logger      *zap.Logger
}

// NewMappingService creates a mapping query service
func NewMappingService(
	mappingRepo repositories.MappingRepository,
	chain ChainReader,
	decoder *ethereum.Decoder,
	cache *cache.RedisCache,
	cfg config.APIConfig,
	deploymentBlock uint64,
	logger *zap.Logger,
) *MappingService {
	return &MappingService{
		mappingRepo: mappingRepo,
		chain:       chain,
		lookup:      ethereum.NewLookup(chain, decoder),
		cache:       cache,
		config:      cfg,
		startBlock:  deploymentBlock,
		logger:      logger,
	}
}

// MappingDTO is the API representation of a gift mapping
type MappingDTO struct {
	TokenID      string  `json:"token_id"`
	GiftID       string  `json:"gift_id"`
	Creator      string  `json:"creator"`
	NFTContract  string  `json:"nft_contract"`
	BlockNumber  int64   `json:"block_number"`
	LogIndex     int     `json:"log_index"`
	TxHash       string  `json:"tx_hash"`
	BlockTime    *string `json:"block_time,omitempty"`
	ExpiresAt    *string `json:"expires_at,omitempty"`
	Gate         string  `json:"gate,omitempty"`
	GiftMessage  string  `json:"gift_message,omitempty"`
	RegisteredBy string  `json:"registered_by,omitempty"`
}

// MappingResponse is the API response for single mapping queries
type MappingResponse struct {
	Data   MappingDTO `json:"data"`
	Source string     `json:"source"`
}

// VerifyResponse is the API response for an A/B verification of a
// stored mapping against a fresh on-chain lookup
type VerifyResponse struct {
	TokenID string      `json:"token_id"`
	Match   bool        `json:"match"`
	Stored  *MappingDTO `json:"stored,omitempty"`
	Chain   *MappingDTO `json:"chain,omitempty"`
}

// Get retrieves the mapping for a tokenId, or nil when none exists
func (s *MappingService) Get(ctx context.Context, tokenID string) (*MappingResponse, error) {
	cacheKey := fmt.Sprintf("mappings:%s", tokenID)

	var cached MappingResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	mapping, source, err := s.resolve(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, nil
	}

	response := &MappingResponse{
		Data:   mappingToDTO(mapping),
		Source: source,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, response); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}

// Verify compares the stored mapping against a fresh chain derivation.
// Both sides missing counts as a match; any field divergence does not.
func (s *MappingService) Verify(ctx context.Context, tokenID string) (*VerifyResponse, error) {
	stored, err := s.mappingRepo.Get(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stored mapping: %w", err)
	}

	derived, err := s.fromChain(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive mapping from chain: %w", err)
	}

	response := &VerifyResponse{TokenID: tokenID}
	if stored != nil {
		dto := mappingToDTO(stored)
		response.Stored = &dto
	}
	if derived != nil {
		dto := mappingToDTO(derived)
		response.Chain = &dto
	}

	switch {
	case stored == nil && derived == nil:
		response.Match = true
	case stored == nil || derived == nil:
		response.Match = false
	default:
		response.Match = !stored.Diverges(derived)
	}

	return response, nil
}

func (s *MappingService) resolve(ctx context.Context, tokenID string) (*entities.GiftMapping, string, error) {
	if s.config.ReadMode == "chain" {
		mapping, err := s.fromChain(ctx, tokenID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to derive mapping from chain: %w", err)
		}
		return mapping, "chain", nil
	}

	mapping, err := s.mappingRepo.Get(ctx, tokenID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get mapping: %w", err)
	}
	return mapping, "store", nil
}

// fromChain scans contract logs from the deployment block to the safe
// head for the tokenId's highest-ordered registration event.
func (s *MappingService) fromChain(ctx context.Context, tokenID string) (*entities.GiftMapping, error) {
	safe, err := s.chain.SafeProcessingBlock(ctx)
	if err != nil {
		return nil, err
	}
	return s.lookup.FindInRange(ctx, tokenID, s.startBlock, safe)
}

func mappingToDTO(m *entities.GiftMapping) MappingDTO {
	dto := MappingDTO{
		TokenID:      m.TokenID,
		GiftID:       m.GiftID,
		Creator:      m.Creator,
		NFTContract:  m.NFTContract,
		BlockNumber:  m.BlockNumber,
		LogIndex:     m.LogIndex,
		TxHash:       m.TxHash,
		Gate:         m.Gate,
		GiftMessage:  m.GiftMessage,
		RegisteredBy: m.RegisteredBy,
	}
	if m.BlockTime != nil {
		t := m.BlockTime.UTC().Format(time.RFC3339)
		dto.BlockTime = &t
	}
	if m.ExpiresAt != nil {
		t := m.ExpiresAt.UTC().Format(time.RFC3339)
		dto.ExpiresAt = &t
	}
	return dto
}
