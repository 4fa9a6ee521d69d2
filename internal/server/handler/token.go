package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// TokenService defines the methods that the token handler requires from the
// service layer.
type TokenService interface {
	Mint(ctx context.Context) (domain.TokenMint, error)
	MintTokens(ctx context.Context, recipient common.Address, amount uint64) (domain.TokenHolding, error)
	Holding(ctx context.Context, owner common.Address) (domain.TokenHolding, error)
}

// TokenHandler serves voting-token HTTP endpoints.
type TokenHandler struct {
	tokens TokenService
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler with the given service and logger.
func NewTokenHandler(tokens TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		tokens: tokens,
		logger: logger,
	}
}

// GetMint returns the singleton token record.
// GET /api/token
func (h *TokenHandler) GetMint(w http.ResponseWriter, r *http.Request) {
	m, err := h.tokens.Mint(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// mintRequest is the body of POST /api/token/mint.
type mintRequest struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

// MintTokens mints voting tokens to a recipient.
// POST /api/token/mint
func (h *TokenHandler) MintTokens(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	recipient, ok := parseHexAddress(req.Recipient)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	holding, err := h.tokens.MintTokens(r.Context(), recipient, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, holding)
}

// GetHolding returns one owner's balance.
// GET /api/token/holdings/{owner}
func (h *TokenHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseHexAddress(pathParam(r, "owner"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	holding, err := h.tokens.Holding(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}
