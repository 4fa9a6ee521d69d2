package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketState represents the lifecycle state of a market.
type MarketState string

const (
	// MarketStateOpen accepts stakes until the deadline passes.
	MarketStateOpen MarketState = "open"
	// MarketStateClosed rejects stakes and awaits per-facet resolution.
	MarketStateClosed MarketState = "closed"
	// MarketStateResolved means every facet has a frozen winning outcome.
	MarketStateResolved MarketState = "resolved"
	// MarketStateSettled is informational: every stake has been paid out.
	// It never blocks further settle calls.
	MarketStateSettled MarketState = "settled"
)

// VoidOutcome is the reserved outcome label a resolver uses to void a
// facet. A void facet refunds every stake in full.
const VoidOutcome = "void"

// Timeout bounds for new markets.
const (
	MinTimeout = 24 * time.Hour
	MaxTimeout = 14 * 24 * time.Hour
)

// MaxStakesPerFacet caps the number of stake records a single facet will
// accept.
const MaxStakesPerFacet = 10_000

// Pool accumulates stakes for one facet, broken down by outcome label.
// Totals are maintained incrementally on every accepted stake, never
// recomputed by scanning.
type Pool struct {
	Outcomes map[string]uint64 `json:"outcomes"`
	Total    uint64            `json:"total"`
	Stakes   int               `json:"stakes"`
}

// Resolution freezes a facet's winning outcome and pool sizes for payout
// math. Set at most once per facet; immutable thereafter.
type Resolution struct {
	Winner      string    `json:"winner"`
	PoolTotal   uint64    `json:"pool_total"`
	WinningPool uint64    `json:"winning_pool"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Market is the staking ledger for one reference token. Its address is a
// deterministic function of the token identity, so exactly one market can
// exist per token.
type Market struct {
	Address        common.Hash           `json:"address"`
	Admin          common.Address        `json:"admin"`
	ReferenceToken common.Address        `json:"reference_token"`
	Facets         []Facet               `json:"facets"`
	Timeout        time.Duration         `json:"timeout"`
	CreatedAt      time.Time             `json:"created_at"`
	State          MarketState           `json:"state"`
	Round          uint16                `json:"round"`
	Pools          map[Facet]*Pool       `json:"pools"`
	Resolutions    map[Facet]*Resolution `json:"resolutions"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Deadline returns the instant after which staking closes.
func (m Market) Deadline() time.Time {
	return m.CreatedAt.Add(m.Timeout)
}

// Expired reports whether the staking deadline has passed at the given
// instant. The ledger evaluates this lazily at the top of every
// state-changing call; there is no background timer.
func (m Market) Expired(now time.Time) bool {
	return now.After(m.Deadline())
}

// HasFacet reports whether the facet is configured on this market.
func (m Market) HasFacet(f Facet) bool {
	for _, mf := range m.Facets {
		if mf == f {
			return true
		}
	}
	return false
}
