package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Initialise(ctx context.Context, admin, token common.Address, facets []domain.Facet, timeout time.Duration) (domain.Market, error)
	GetMarket(ctx context.Context, token common.Address) (domain.Market, error)
	ListMarkets(ctx context.Context) []domain.Market
	PlaceStake(ctx context.Context, bettor, token common.Address, facet domain.Facet, outcome string, amount uint64) (domain.Stake, error)
	Resolve(ctx context.Context, caller, token common.Address, facet domain.Facet, outcome string) (domain.Resolution, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// initialiseRequest is the body of POST /api/markets.
type initialiseRequest struct {
	Admin          string   `json:"admin"`
	ReferenceToken string   `json:"reference_token"`
	Facets         []string `json:"facets"`
	TimeoutHours   int      `json:"timeout_hours"`
}

// CreateMarket initialises the market for a reference token.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req initialiseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	admin, ok := parseHexAddress(req.Admin)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid admin address")
		return
	}
	token, ok := parseHexAddress(req.ReferenceToken)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reference token address")
		return
	}

	facets := make([]domain.Facet, len(req.Facets))
	for i, f := range req.Facets {
		facets[i] = domain.Facet(f)
	}

	market, err := h.markets.Initialise(r.Context(), admin, token, facets, time.Duration(req.TimeoutHours)*time.Hour)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int             `json:"total"`
}

// ListMarkets returns every market, newest first.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.ListMarkets(r.Context())
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   len(markets),
	})
}

// GetMarket returns the market for a reference token.
// GET /api/markets/{token}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	token, ok := parseHexAddress(pathParam(r, "token"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reference token address")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), token)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// placeStakeRequest is the body of POST /api/markets/{token}/stakes.
type placeStakeRequest struct {
	Bettor  string `json:"bettor"`
	Facet   string `json:"facet"`
	Outcome string `json:"outcome"`
	Amount  uint64 `json:"amount"`
}

// PlaceStake records a stake in the market for a reference token.
// POST /api/markets/{token}/stakes
func (h *MarketHandler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	token, ok := parseHexAddress(pathParam(r, "token"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reference token address")
		return
	}

	var req placeStakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bettor, ok := parseHexAddress(req.Bettor)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}

	stake, err := h.markets.PlaceStake(r.Context(), bettor, token, domain.Facet(req.Facet), req.Outcome, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stake)
}

// resolveRequest is the body of POST /api/markets/{token}/resolve.
type resolveRequest struct {
	Caller  string `json:"caller"`
	Facet   string `json:"facet"`
	Outcome string `json:"outcome"`
}

// Resolve freezes one facet's winning outcome.
// POST /api/markets/{token}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	token, ok := parseHexAddress(pathParam(r, "token"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reference token address")
		return
	}

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseHexAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	res, err := h.markets.Resolve(r.Context(), caller, token, domain.Facet(req.Facet), req.Outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
