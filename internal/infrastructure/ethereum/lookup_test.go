package ethereum

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
)

type fakeLogSource struct {
	logs []types.Log
	err  error
}

func (f *fakeLogSource) GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := make([]types.Log, 0)
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			result = append(result, log)
		}
	}
	return result, nil
}

func TestLookup_FindInRange(t *testing.T) {
	d := newTestDecoder(t)

	source := &fakeLogSource{logs: []types.Log{
		makeGiftLog(t, giftLogFields{giftID: 77, tokenID: 135, block: 100, logIndex: 0}),
		makeGiftLog(t, giftLogFields{giftID: 88, tokenID: 135, block: 102, logIndex: 1}),
		makeGiftLog(t, giftLogFields{giftID: 99, tokenID: 136, block: 101, logIndex: 0}),
	}}
	lookup := NewLookup(source, d)

	m, err := lookup.FindInRange(context.Background(), "135", 0, 200)
	if err != nil {
		t.Fatalf("FindInRange() error = %v", err)
	}
	if m == nil {
		t.Fatal("FindInRange() = nil, want mapping")
	}
	if m.GiftID != "88" || m.BlockNumber != 102 {
		t.Errorf("FindInRange() picked gift %s at block %d, want the highest-ordered event (88 at 102)", m.GiftID, m.BlockNumber)
	}
}

func TestLookup_FindInRange_RespectsWindow(t *testing.T) {
	d := newTestDecoder(t)

	source := &fakeLogSource{logs: []types.Log{
		makeGiftLog(t, giftLogFields{giftID: 77, tokenID: 135, block: 100}),
	}}
	lookup := NewLookup(source, d)

	m, err := lookup.FindInRange(context.Background(), "135", 200, 300)
	if err != nil {
		t.Fatalf("FindInRange() error = %v", err)
	}
	if m != nil {
		t.Errorf("FindInRange() = %+v outside the window, want nil", m)
	}
}

func TestLookup_FindInRange_SourceError(t *testing.T) {
	d := newTestDecoder(t)
	lookup := NewLookup(&fakeLogSource{err: errors.New("rpc down")}, d)

	if _, err := lookup.FindInRange(context.Background(), "135", 0, 100); err == nil {
		t.Fatal("FindInRange() error = nil, want propagated source error")
	}
}
