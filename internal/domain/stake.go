package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Stake is one participant's position on one (facet, outcome) pair within a
// market. Repeat stakes on the same pair accumulate into the same record.
// Amounts are in the smallest unit of the market's reference token.
type Stake struct {
	ID       common.Hash    `json:"id"`
	Market   common.Hash    `json:"market"`
	Bettor   common.Address `json:"bettor"`
	Facet    Facet          `json:"facet"`
	Outcome  string         `json:"outcome"`
	Amount   uint64         `json:"amount"`
	Settled  bool           `json:"settled"`
	Payout   uint64         `json:"payout"`
	PlacedAt time.Time      `json:"placed_at"`

	// SettledAt is nil until the stake settles.
	SettledAt *time.Time `json:"settled_at,omitempty"`
}
