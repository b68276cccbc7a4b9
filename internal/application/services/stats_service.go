package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/repositories"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/cache"
)

const statsCacheKey = "stats:global"

// StatsService provides aggregate store statistics and DLQ inspection
// for the read API.
type StatsService struct {
	mappingRepo repositories.MappingRepository
	dlqRepo     repositories.DLQRepository
	cache       *cache.RedisCache
	logger      *zap.Logger
}

// NewStatsService creates a stats query service
func NewStatsService(
	mappingRepo repositories.MappingRepository,
	dlqRepo repositories.DLQRepository,
	cache *cache.RedisCache,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		mappingRepo: mappingRepo,
		dlqRepo:     dlqRepo,
		cache:       cache,
		logger:      logger,
	}
}

// StatsResponse is the API response for aggregate statistics
type StatsResponse struct {
	Data entities.MappingStats `json:"data"`
}

// DLQEntryDTO is the API representation of a dead letter entry
type DLQEntryDTO struct {
	ID          int64  `json:"id"`
	Reason      string `json:"reason"`
	RetryCount  int    `json:"retry_count"`
	FirstSeenAt string `json:"first_seen_at"`
	RawLog      string `json:"raw_log"`
}

// DLQListResponse is the API response for DLQ listings
type DLQListResponse struct {
	Data  []DLQEntryDTO `json:"data"`
	Total int64         `json:"total"`
}

// GetStats retrieves aggregate mapping statistics
func (s *StatsService) GetStats(ctx context.Context) (*StatsResponse, error) {
	var cached StatsResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", statsCacheKey))
			return &cached, nil
		}
	}

	stats, err := s.mappingRepo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	response := &StatsResponse{Data: *stats}

	if s.cache != nil {
		// Stats move every block, short TTL keeps them honest.
		if err := s.cache.SetWithTTL(ctx, statsCacheKey, response, 10*time.Second); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}

// ListDLQ retrieves the oldest dead letter entries for inspection
func (s *StatsService) ListDLQ(ctx context.Context, limit int) (*DLQListResponse, error) {
	entries, err := s.dlqRepo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list DLQ entries: %w", err)
	}

	total, err := s.dlqRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count DLQ entries: %w", err)
	}

	dtos := make([]DLQEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = DLQEntryDTO{
			ID:          e.ID,
			Reason:      e.Reason,
			RetryCount:  e.RetryCount,
			FirstSeenAt: e.FirstSeenAt.UTC().Format(time.RFC3339),
			RawLog:      string(e.RawLog),
		}
	}

	return &DLQListResponse{Data: dtos, Total: total}, nil
}
