package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Signal bus channels for ledger events. The websocket hub relays these to
// connected clients; notifiers filter on the channel name.
const (
	ChannelMarket     = "ch:market"
	ChannelStake      = "ch:stake"
	ChannelResolution = "ch:resolution"
	ChannelSettlement = "ch:settlement"

	// StreamLedger is the durable stream every event is also appended to.
	StreamLedger = "ledger:events"
)

// MarketCreatedEvent is published when a market is initialised.
type MarketCreatedEvent struct {
	Market         common.Hash    `json:"market"`
	ReferenceToken common.Address `json:"reference_token"`
	Facets         []Facet        `json:"facets"`
	Deadline       time.Time      `json:"deadline"`
}

// StakePlacedEvent is published when a stake is accepted.
type StakePlacedEvent struct {
	Market  common.Hash    `json:"market"`
	Stake   common.Hash    `json:"stake"`
	Bettor  common.Address `json:"bettor"`
	Facet   Facet          `json:"facet"`
	Outcome string         `json:"outcome"`
	Amount  uint64         `json:"amount"`
	Pool    uint64         `json:"pool"`
}

// FacetResolvedEvent is published when the admin freezes a facet's outcome.
type FacetResolvedEvent struct {
	Market      common.Hash `json:"market"`
	Facet       Facet       `json:"facet"`
	Winner      string      `json:"winner"`
	PoolTotal   uint64      `json:"pool_total"`
	WinningPool uint64      `json:"winning_pool"`
	AllResolved bool        `json:"all_resolved"`
}

// StakeSettledEvent is published when a stake's payout is released.
type StakeSettledEvent struct {
	Market common.Hash    `json:"market"`
	Stake  common.Hash    `json:"stake"`
	Bettor common.Address `json:"bettor"`
	Facet  Facet          `json:"facet"`
	Payout uint64         `json:"payout"`
}
