package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// StakeService defines the methods that the stake handler requires from the
// service layer.
type StakeService interface {
	GetStake(ctx context.Context, id common.Hash) (domain.Stake, error)
	Settle(ctx context.Context, id common.Hash) (domain.Stake, error)
	ListStakesByMarket(ctx context.Context, addr common.Hash) ([]domain.Stake, error)
	ListStakesByBettor(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Stake, error)
}

// StakeHandler serves stake lookup and settlement endpoints.
type StakeHandler struct {
	stakes StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler with the given service and logger.
func NewStakeHandler(stakes StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		stakes: stakes,
		logger: logger,
	}
}

// GetStake returns one stake by its derived identity.
// GET /api/stakes/{id}
func (h *StakeHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHexHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stake id")
		return
	}

	stake, err := h.stakes.GetStake(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stake)
}

// Settle releases one stake's payout.
// POST /api/stakes/{id}/settle
func (h *StakeHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHexHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stake id")
		return
	}

	stake, err := h.stakes.Settle(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stake)
}

// listStakesResponse wraps the list endpoint output with metadata.
type listStakesResponse struct {
	Stakes []domain.Stake `json:"stakes"`
	Total  int            `json:"total"`
}

// ListStakes returns stakes filtered by market or bettor. Exactly one of
// the market and bettor query parameters must be supplied.
// GET /api/stakes?market=... or GET /api/stakes?bettor=...
func (h *StakeHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	marketParam := q.Get("market")
	bettorParam := q.Get("bettor")

	switch {
	case marketParam != "" && bettorParam != "":
		writeError(w, http.StatusBadRequest, "specify either market or bettor, not both")
	case marketParam != "":
		addr, ok := parseHexHash(marketParam)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid market address")
			return
		}
		stakes, err := h.stakes.ListStakesByMarket(r.Context(), addr)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listStakesResponse{Stakes: stakes, Total: len(stakes)})
	case bettorParam != "":
		bettor, ok := parseHexAddress(bettorParam)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid bettor address")
			return
		}
		stakes, err := h.stakes.ListStakesByBettor(r.Context(), bettor, parseListOpts(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listStakesResponse{Stakes: stakes, Total: len(stakes)})
	default:
		writeError(w, http.StatusBadRequest, "market or bettor query parameter required")
	}
}
