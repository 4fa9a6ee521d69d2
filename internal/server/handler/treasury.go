package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/authensus/marketd/internal/domain"
)

// TreasuryService defines the methods that the treasury handler requires
// from the service layer.
type TreasuryService interface {
	Treasury(ctx context.Context) (domain.Treasury, error)
	Account(ctx context.Context, owner common.Address) (domain.TreasuryAccount, error)
	Deposit(ctx context.Context, coparty common.Address, amount uint64, authorityProof, copartyProof []byte) (domain.Treasury, error)
	Reimburse(ctx context.Context, coparty common.Address, amount uint64, authorityProof, copartyProof []byte) (domain.Treasury, error)
	ReceiveVotingTokens(ctx context.Context, amount, holdingBalance uint64, authorityProof []byte) (domain.Treasury, error)
}

// TreasuryHandler serves escrow HTTP endpoints.
type TreasuryHandler struct {
	treasury TreasuryService
	logger   *slog.Logger
}

// NewTreasuryHandler creates a TreasuryHandler with the given service and
// logger.
func NewTreasuryHandler(treasury TreasuryService, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{
		treasury: treasury,
		logger:   logger,
	}
}

// GetTreasury returns the treasury singleton.
// GET /api/treasury
func (h *TreasuryHandler) GetTreasury(w http.ResponseWriter, r *http.Request) {
	rec, err := h.treasury.Treasury(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetAccount returns one counterparty's available balance.
// GET /api/treasury/accounts/{owner}
func (h *TreasuryHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseHexAddress(pathParam(r, "owner"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	acct, err := h.treasury.Account(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// transactRequest is the body of the deposit and reimburse endpoints. Both
// proofs are hex-encoded 65-byte signatures.
type transactRequest struct {
	Coparty        string `json:"coparty"`
	Amount         uint64 `json:"amount"`
	AuthorityProof string `json:"authority_proof"`
	CopartyProof   string `json:"coparty_proof"`
}

func (req *transactRequest) decode() (common.Address, []byte, []byte, bool) {
	coparty, ok := parseHexAddress(req.Coparty)
	if !ok {
		return common.Address{}, nil, nil, false
	}
	authorityProof, err := hexutil.Decode(req.AuthorityProof)
	if err != nil {
		return common.Address{}, nil, nil, false
	}
	copartyProof, err := hexutil.Decode(req.CopartyProof)
	if err != nil {
		return common.Address{}, nil, nil, false
	}
	return coparty, authorityProof, copartyProof, true
}

// Deposit moves funds from a counterparty account into the treasury.
// POST /api/treasury/deposit
func (h *TreasuryHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req transactRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	coparty, authorityProof, copartyProof, ok := req.decode()
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid coparty address or proof encoding")
		return
	}

	rec, err := h.treasury.Deposit(r.Context(), coparty, req.Amount, authorityProof, copartyProof)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Reimburse moves funds from the treasury back to a counterparty account.
// POST /api/treasury/reimburse
func (h *TreasuryHandler) Reimburse(w http.ResponseWriter, r *http.Request) {
	var req transactRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	coparty, authorityProof, copartyProof, ok := req.decode()
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid coparty address or proof encoding")
		return
	}

	rec, err := h.treasury.Reimburse(r.Context(), coparty, req.Amount, authorityProof, copartyProof)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// receiveTokensRequest is the body of POST /api/treasury/voting-tokens.
type receiveTokensRequest struct {
	Amount         uint64 `json:"amount"`
	HoldingBalance uint64 `json:"holding_balance"`
	AuthorityProof string `json:"authority_proof"`
}

// ReceiveVotingTokens records voting tokens arriving at the treasury.
// POST /api/treasury/voting-tokens
func (h *TreasuryHandler) ReceiveVotingTokens(w http.ResponseWriter, r *http.Request) {
	var req receiveTokensRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	authorityProof, err := hexutil.Decode(req.AuthorityProof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proof encoding")
		return
	}

	rec, err := h.treasury.ReceiveVotingTokens(r.Context(), req.Amount, req.HoldingBalance, authorityProof)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
