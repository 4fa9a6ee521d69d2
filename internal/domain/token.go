package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// The canonical voting-token configuration. Initialisation is a
// whitelist-of-one: any deviation is rejected with a distinct error.
const (
	TokenName     = "AuthensusVotingToken"
	TokenSymbol   = "AUTHVOTE"
	TokenURI      = ""
	TokenDecimals = uint8(9)
)

// TokenMint is the singleton fungible-token record for the deployment.
type TokenMint struct {
	Address   common.Hash    `json:"address"`
	Name      string         `json:"name"`
	Symbol    string         `json:"symbol"`
	URI       string         `json:"uri"`
	Decimals  uint8          `json:"decimals"`
	Authority common.Address `json:"authority"`
	Supply    uint64         `json:"supply"`
	CreatedAt time.Time      `json:"created_at"`
}

// TokenHolding is one account's balance of the voting token. Holdings are
// created on first mint to the owner.
type TokenHolding struct {
	Owner   common.Address `json:"owner"`
	Balance uint64         `json:"balance"`
}
