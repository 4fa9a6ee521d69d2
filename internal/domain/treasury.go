package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Treasury is the singleton escrow record. Balance moves only through
// dual-signed deposit and reimburse operations; VotingTokens only ever
// increases.
type Treasury struct {
	Address      common.Hash    `json:"address"`
	Authority    common.Address `json:"authority"`
	Balance      uint64         `json:"balance"`
	VotingTokens uint64         `json:"voting_tokens"`

	// Nonce is incremented on every accepted transaction; signature proofs
	// commit to the next nonce, which makes them single-use.
	Nonce     uint64    `json:"nonce"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TreasuryAccount is a counterparty's available balance held on the
// treasury's books. Deposits debit it; reimbursements and settlement
// payouts credit it.
type TreasuryAccount struct {
	Owner   common.Address `json:"owner"`
	Balance uint64         `json:"balance"`
}
