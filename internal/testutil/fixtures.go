package testutil

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
)

// Common test addresses
const (
	GiftContractAddress = "0x4444444444444444444444444444444444444444"
	NFTContractAddress  = "0x5555555555555555555555555555555555555555"
	CreatorAddress      = "0x1111111111111111111111111111111111111111"
	RegistrarAddress    = "0x2222222222222222222222222222222222222222"
	GateAddress         = "0x3333333333333333333333333333333333333333"
)

// CreateTestMapping creates a test gift mapping with default values
func CreateTestMapping(opts ...MappingOption) *entities.GiftMapping {
	m := &entities.GiftMapping{
		TokenID:      "135",
		GiftID:       "77",
		Creator:      CreatorAddress,
		NFTContract:  NFTContractAddress,
		BlockNumber:  100,
		LogIndex:     0,
		TxHash:       "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		RegisteredBy: RegistrarAddress,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

type MappingOption func(*entities.GiftMapping)

func WithTokenID(id string) MappingOption {
	return func(m *entities.GiftMapping) {
		m.TokenID = id
	}
}

func WithGiftID(id string) MappingOption {
	return func(m *entities.GiftMapping) {
		m.GiftID = id
	}
}

func WithBlockNumber(num int64) MappingOption {
	return func(m *entities.GiftMapping) {
		m.BlockNumber = num
	}
}

func WithLogIndex(idx int) MappingOption {
	return func(m *entities.GiftMapping) {
		m.LogIndex = idx
	}
}

func WithTxHash(hash string) MappingOption {
	return func(m *entities.GiftMapping) {
		m.TxHash = hash
	}
}

func WithBlockTime(ts time.Time) MappingOption {
	return func(m *entities.GiftMapping) {
		m.BlockTime = &ts
	}
}

// GiftLogParams controls the raw GiftRegistered log a fixture builds
type GiftLogParams struct {
	Contract    string
	GiftID      int64
	Creator     string
	NFTContract string
	TokenID     int64
	ExpiresAt   int64
	Gate        string
	Message     string
	Registrar   string
	BlockNumber uint64
	LogIndex    uint
	TxHash      string
}

// CreateGiftLog builds an ABI-correct raw GiftRegistered log. Zero-value
// params fall back to the common test addresses, so most tests only set
// TokenID, GiftID and BlockNumber.
func CreateGiftLog(p GiftLogParams) types.Log {
	if p.Contract == "" {
		p.Contract = GiftContractAddress
	}
	if p.Creator == "" {
		p.Creator = CreatorAddress
	}
	if p.NFTContract == "" {
		p.NFTContract = NFTContractAddress
	}
	if p.Registrar == "" {
		p.Registrar = RegistrarAddress
	}
	if p.TxHash == "" {
		p.TxHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	}

	parsed, err := abi.JSON(strings.NewReader(ethereum.GiftEventABI))
	if err != nil {
		panic("fixture ABI parse failed: " + err.Error())
	}
	event := parsed.Events[ethereum.GiftEventName]

	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(p.TokenID),
		big.NewInt(p.ExpiresAt),
		common.HexToAddress(p.Gate),
		p.Message,
		common.HexToAddress(p.Registrar),
	)
	if err != nil {
		panic("fixture event pack failed: " + err.Error())
	}

	return types.Log{
		Address: common.HexToAddress(p.Contract),
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(big.NewInt(p.GiftID)),
			common.HexToHash(p.Creator),
			common.HexToHash(p.NFTContract),
		},
		Data:        data,
		BlockNumber: p.BlockNumber,
		TxHash:      common.HexToHash(p.TxHash),
		Index:       p.LogIndex,
	}
}
