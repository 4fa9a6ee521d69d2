package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// stubMarketService returns canned responses so handler behavior can be
// tested without the ledger.
type stubMarketService struct {
	market     domain.Market
	stake      domain.Stake
	resolution domain.Resolution
	err        error
}

func (s *stubMarketService) Initialise(ctx context.Context, admin, token common.Address, facets []domain.Facet, timeout time.Duration) (domain.Market, error) {
	return s.market, s.err
}

func (s *stubMarketService) GetMarket(ctx context.Context, token common.Address) (domain.Market, error) {
	return s.market, s.err
}

func (s *stubMarketService) ListMarkets(ctx context.Context) []domain.Market {
	return []domain.Market{s.market}
}

func (s *stubMarketService) PlaceStake(ctx context.Context, bettor, token common.Address, facet domain.Facet, outcome string, amount uint64) (domain.Stake, error) {
	return s.stake, s.err
}

func (s *stubMarketService) Resolve(ctx context.Context, caller, token common.Address, facet domain.Facet, outcome string) (domain.Resolution, error) {
	return s.resolution, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newMux(svc MarketService) *http.ServeMux {
	h := NewMarketHandler(svc, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets", h.CreateMarket)
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{token}", h.GetMarket)
	mux.HandleFunc("POST /api/markets/{token}/stakes", h.PlaceStake)
	mux.HandleFunc("POST /api/markets/{token}/resolve", h.Resolve)
	return mux
}

const (
	testAdmin = "0x1111111111111111111111111111111111111111"
	testToken = "0x2222222222222222222222222222222222222222"
)

func TestCreateMarket(t *testing.T) {
	svc := &stubMarketService{
		market: domain.Market{
			Admin:          common.HexToAddress(testAdmin),
			ReferenceToken: common.HexToAddress(testToken),
			State:          domain.MarketStateOpen,
		},
	}
	mux := newMux(svc)

	body := `{"admin":"` + testAdmin + `","reference_token":"` + testToken + `","facets":["truthfulness"],"timeout_hours":48}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var got domain.Market
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.ReferenceToken != common.HexToAddress(testToken) {
		t.Errorf("reference token = %s, want %s", got.ReferenceToken, testToken)
	}
}

func TestCreateMarketRejectsBadInput(t *testing.T) {
	mux := newMux(&stubMarketService{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"unknown field", `{"bogus":1}`},
		{"bad admin", `{"admin":"zzz","reference_token":"` + testToken + `","facets":["truthfulness"],"timeout_hours":48}`},
		{"bad token", `{"admin":"` + testAdmin + `","reference_token":"short","facets":["truthfulness"],"timeout_hours":48}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCreateMarketMapsLedgerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   uint32
	}{
		{"duplicate market", domain.ErrMarketAlreadyExists, http.StatusConflict, 1000},
		{"bad timeout", domain.ErrTimeoutOutOfRange, http.StatusBadRequest, 1008},
		{"unknown market", domain.ErrNotFound, http.StatusNotFound, 0},
	}

	body := `{"admin":"` + testAdmin + `","reference_token":"` + testToken + `","facets":["truthfulness"],"timeout_hours":48}`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(&stubMarketService{err: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode == 0 {
				return
			}
			var resp struct {
				Code   uint32 `json:"code"`
				Symbol string `json:"symbol"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal error body: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", resp.Code, tt.wantCode)
			}
			if resp.Symbol == "" {
				t.Error("symbol missing from error body")
			}
		})
	}
}

func TestGetMarketPathParam(t *testing.T) {
	svc := &stubMarketService{
		market: domain.Market{ReferenceToken: common.HexToAddress(testToken)},
	}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/"+testToken, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/markets/not-an-address", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestPlaceStakeReturnsCreated(t *testing.T) {
	svc := &stubMarketService{
		stake: domain.Stake{
			Bettor:  common.HexToAddress(testAdmin),
			Facet:   domain.FacetTruthfulness,
			Outcome: "yes",
			Amount:  100,
		},
	}
	mux := newMux(svc)

	body := `{"bettor":"` + testAdmin + `","facet":"truthfulness","outcome":"yes","amount":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets/"+testToken+"/stakes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestResolveForbiddenForNonAdmin(t *testing.T) {
	mux := newMux(&stubMarketService{err: domain.ErrNotAdmin})

	body := `{"caller":"` + testAdmin + `","facet":"truthfulness","outcome":"yes"}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets/"+testToken+"/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
