package ethereum

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/domain/entities"
)

// GiftEventABI describes the single event this engine consumes.
const GiftEventABI = `[{"type":"event","name":"GiftRegistered","inputs":[
	{"name":"giftId","type":"uint256","indexed":true},
	{"name":"creator","type":"address","indexed":true},
	{"name":"nftContract","type":"address","indexed":true},
	{"name":"tokenId","type":"uint256","indexed":false},
	{"name":"expiresAt","type":"uint40","indexed":false},
	{"name":"gate","type":"address","indexed":false},
	{"name":"giftMessage","type":"string","indexed":false},
	{"name":"registeredBy","type":"address","indexed":false}]}]`

// GiftEventName is the decoded event's name in the contract ABI.
const GiftEventName = "GiftRegistered"

// DecodeError is a per-log failure that preserves the raw log so it can be
// routed to the DLQ instead of being dropped.
type DecodeError struct {
	Reason string
	Log    types.Log
}

func (e *DecodeError) Error() string {
	return "decode failed: " + e.Reason
}

// Decoder turns raw GiftRegistered logs into GiftMapping records.
// Decoding is pure; no side effects and no RPC calls.
type Decoder struct {
	event    abi.Event
	contract common.Address
}

// NewDecoder creates a decoder for the configured contract address
func NewDecoder(contract common.Address) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(GiftEventABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse gift event ABI: %w", err)
	}

	event, ok := parsed.Events[GiftEventName]
	if !ok {
		return nil, fmt.Errorf("event %s missing from ABI", GiftEventName)
	}

	return &Decoder{
		event:    event,
		contract: contract,
	}, nil
}

// EventID returns the keccak hash identifying the event topic
func (d *Decoder) EventID() common.Hash {
	return d.event.ID
}

// Contract returns the contract address the decoder accepts logs from
func (d *Decoder) Contract() common.Address {
	return d.contract
}

// Decode validates and decodes a single raw log into a GiftMapping
func (d *Decoder) Decode(log types.Log) (*entities.GiftMapping, error) {
	if log.Address != d.contract {
		return nil, &DecodeError{Reason: fmt.Sprintf("log from unexpected contract %s", log.Address.Hex()), Log: log}
	}
	if len(log.Topics) != 4 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid number of topics: expected 4, got %d", len(log.Topics)), Log: log}
	}
	if log.Topics[0] != d.event.ID {
		return nil, &DecodeError{Reason: "not a " + GiftEventName + " event", Log: log}
	}

	giftID := new(big.Int).SetBytes(log.Topics[1].Bytes())
	creator := common.BytesToAddress(log.Topics[2].Bytes())
	nftContract := common.BytesToAddress(log.Topics[3].Bytes())

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, &DecodeError{Reason: "data unpack failed: " + err.Error(), Log: log}
	}
	if len(values) != 5 {
		return nil, &DecodeError{Reason: fmt.Sprintf("unexpected field count: %d", len(values)), Log: log}
	}

	tokenID, ok := values[0].(*big.Int)
	if !ok {
		return nil, &DecodeError{Reason: "tokenId is not uint256", Log: log}
	}
	expiresAt, ok := values[1].(*big.Int)
	if !ok {
		return nil, &DecodeError{Reason: "expiresAt is not uint40", Log: log}
	}
	gate, ok := values[2].(common.Address)
	if !ok {
		return nil, &DecodeError{Reason: "gate is not an address", Log: log}
	}
	giftMessage, ok := values[3].(string)
	if !ok {
		return nil, &DecodeError{Reason: "giftMessage is not a string", Log: log}
	}
	registeredBy, ok := values[4].(common.Address)
	if !ok {
		return nil, &DecodeError{Reason: "registeredBy is not an address", Log: log}
	}

	m := &entities.GiftMapping{
		TokenID:      tokenID.String(),
		GiftID:       giftID.String(),
		Creator:      strings.ToLower(creator.Hex()),
		NFTContract:  strings.ToLower(nftContract.Hex()),
		BlockNumber:  int64(log.BlockNumber),
		LogIndex:     int(log.Index),
		TxHash:       log.TxHash.Hex(),
		GiftMessage:  giftMessage,
		RegisteredBy: strings.ToLower(registeredBy.Hex()),
	}

	if gate != (common.Address{}) {
		m.Gate = strings.ToLower(gate.Hex())
	}
	if expiresAt.Sign() > 0 {
		t := time.Unix(expiresAt.Int64(), 0).UTC()
		m.ExpiresAt = &t
	}

	return m, nil
}

// IsGiftEvent checks whether a log carries the GiftRegistered signature
func (d *Decoder) IsGiftEvent(log types.Log) bool {
	return len(log.Topics) == 4 && log.Topics[0] == d.event.ID
}
