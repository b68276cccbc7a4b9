package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/application/services"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/testutil"
)

func newMappingRouter(t *testing.T, chain *testutil.MockChainReader, mappings *testutil.MockMappingRepository) chi.Router {
	t.Helper()

	decoder, err := ethereum.NewDecoder(common.HexToAddress(testutil.GiftContractAddress))
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}

	service := services.NewMappingService(mappings, chain, decoder, nil, config.APIConfig{ReadMode: "store"}, 90, zap.NewNop())
	handler := NewMappingHandler(service, zap.NewNop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func TestGetMapping(t *testing.T) {
	chain := testutil.NewMockChainReader()
	mappings := testutil.NewMockMappingRepository()
	mappings.Mappings["135"] = testutil.CreateTestMapping()
	router := newMappingRouter(t, chain, mappings)

	req := httptest.NewRequest(http.MethodGet, "/mappings/135", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var resp services.MappingResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.TokenID != "135" || resp.Data.GiftID != "77" {
		t.Errorf("body = %+v, want token 135 mapped to gift 77", resp.Data)
	}
	if resp.Source != "store" {
		t.Errorf("source = %s, want store", resp.Source)
	}
}

func TestGetMapping_NotFound(t *testing.T) {
	router := newMappingRouter(t, testutil.NewMockChainReader(), testutil.NewMockMappingRepository())

	req := httptest.NewRequest(http.MethodGet, "/mappings/999", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetMapping_InvalidTokenID(t *testing.T) {
	router := newMappingRouter(t, testutil.NewMockChainReader(), testutil.NewMockMappingRepository())

	for _, id := range []string{"abc", "12x4", "0x135"} {
		req := httptest.NewRequest(http.MethodGet, "/mappings/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status for %q = %d, want 400", id, w.Code)
		}
	}
}

func TestVerifyMapping(t *testing.T) {
	chain := testutil.NewMockChainReader()
	chain.SetSafeBlock(110)
	chain.AddLog(testutil.CreateGiftLog(testutil.GiftLogParams{TokenID: 135, GiftID: 77, BlockNumber: 100}))

	mappings := testutil.NewMockMappingRepository()
	mappings.Mappings["135"] = testutil.CreateTestMapping(testutil.WithGiftID("999"))
	router := newMappingRouter(t, chain, mappings)

	req := httptest.NewRequest(http.MethodGet, "/mappings/135/verify", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp services.VerifyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Match {
		t.Error("match = true for diverged mapping, want false")
	}
	if resp.Stored == nil || resp.Chain == nil {
		t.Error("verify response must carry both sides on a mismatch")
	}
}

func TestIsValidTokenID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"0", true},
		{"135", true},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", true},
		{"", false},
		{"-1", false},
		{"1.5", false},
		{"deadbeef", false},
		{"1157920892373161954235709850086879078532699846656405640394575840079131296399350", false},
	}

	for _, tt := range tests {
		if got := isValidTokenID(tt.id); got != tt.want {
			t.Errorf("isValidTokenID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
