package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// PlaceStake records a stake of amount on (facet, outcome) for bettor in
// the market denominated in token. Repeat stakes on the same pair
// accumulate into the bettor's existing record; the facet pool is updated
// incrementally under the market lock.
//
// The deadline is evaluated lazily here: the first call after the deadline
// flips the market to Closed and is itself rejected with ErrMarketNotOpen.
func (l *Ledger) PlaceStake(bettor common.Address, token common.Address, facet domain.Facet, outcome string, amount uint64) (domain.Stake, error) {
	if _, err := domain.ParseFacet(string(facet)); err != nil {
		return domain.Stake{}, err
	}
	if amount == 0 {
		return domain.Stake{}, domain.ErrInvalidAmount
	}
	if outcome == "" || outcome == domain.VoidOutcome {
		return domain.Stake{}, domain.ErrInvalidOutcome
	}

	e, err := l.lookup(domain.MarketAddress(token))
	if err != nil {
		return domain.Stake{}, err
	}

	now := l.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	m := &e.market
	if !m.HasFacet(facet) {
		return domain.Stake{}, domain.ErrUnknownFacet
	}

	if m.State == domain.MarketStateOpen && m.Expired(now) {
		m.State = domain.MarketStateClosed
		m.UpdatedAt = now
	}
	if m.State != domain.MarketStateOpen {
		return domain.Stake{}, domain.ErrMarketNotOpen
	}

	pool := m.Pools[facet]

	id := domain.StakeAddress(token, facet, bettor, outcome)
	s, ok := e.stakes[id]
	if !ok {
		if pool.Stakes >= domain.MaxStakesPerFacet {
			return domain.Stake{}, domain.ErrTooManyStakes
		}
		s = &domain.Stake{
			ID:       id,
			Market:   m.Address,
			Bettor:   bettor,
			Facet:    facet,
			Outcome:  outcome,
			PlacedAt: now,
		}
		e.stakes[id] = s
		e.order = append(e.order, id)
		e.unsettled++
		pool.Stakes++

		l.mu.Lock()
		l.stakes[id] = m.Address
		l.mu.Unlock()
	}

	s.Amount += amount
	pool.Outcomes[outcome] += amount
	pool.Total += amount
	m.UpdatedAt = now

	return cloneStake(*s), nil
}
