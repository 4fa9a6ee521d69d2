package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// Resolve freezes the winning outcome for one facet. Only the market admin
// may resolve, each facet resolves at most once, and a named winner must
// actually have received stake; VoidOutcome is always legal and turns the
// facet into a refund-all case.
//
// A market that is nominally Open but past its deadline is closed here
// before the resolution proceeds, so the admin's first call after the
// deadline both closes staking and records the outcome.
func (l *Ledger) Resolve(caller common.Address, token common.Address, facet domain.Facet, outcome string) (domain.Resolution, error) {
	e, err := l.lookup(domain.MarketAddress(token))
	if err != nil {
		return domain.Resolution{}, err
	}

	now := l.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	m := &e.market
	if caller != m.Admin {
		return domain.Resolution{}, domain.ErrNotAdmin
	}
	if !m.HasFacet(facet) {
		return domain.Resolution{}, domain.ErrUnknownFacet
	}

	if m.State == domain.MarketStateOpen {
		if !m.Expired(now) {
			return domain.Resolution{}, domain.ErrMarketNotClosed
		}
		m.State = domain.MarketStateClosed
	}
	if _, done := m.Resolutions[facet]; done {
		return domain.Resolution{}, domain.ErrFacetAlreadyResolved
	}

	pool := m.Pools[facet]
	var winning uint64
	if outcome != domain.VoidOutcome {
		staked, ok := pool.Outcomes[outcome]
		if !ok {
			return domain.Resolution{}, domain.ErrInvalidOutcome
		}
		winning = staked
	}

	res := domain.Resolution{
		Winner:      outcome,
		PoolTotal:   pool.Total,
		WinningPool: winning,
		ResolvedAt:  now,
	}
	m.Resolutions[facet] = &res

	if len(m.Resolutions) == len(m.Facets) {
		if e.unsettled == 0 {
			m.State = domain.MarketStateSettled
		} else {
			m.State = domain.MarketStateResolved
		}
	}
	m.UpdatedAt = now

	return res, nil
}

// Settle releases the payout for one stake and marks it settled. It may be
// called by or on behalf of the owning bettor; the settled flag makes it
// idempotent-guarded rather than idempotent: the second call fails with
// ErrStakeAlreadySettled and changes nothing.
func (l *Ledger) Settle(id common.Hash) (domain.Stake, error) {
	l.mu.RLock()
	marketAddr, ok := l.stakes[id]
	l.mu.RUnlock()
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}

	e, err := l.lookup(marketAddr)
	if err != nil {
		return domain.Stake{}, err
	}

	now := l.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	m := &e.market
	s, ok := e.stakes[id]
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}

	res, resolved := m.Resolutions[s.Facet]
	if !resolved {
		return domain.Stake{}, domain.ErrMarketNotResolved
	}
	if s.Settled {
		return domain.Stake{}, domain.ErrStakeAlreadySettled
	}

	s.Payout = stakePayout(s, res)
	s.Settled = true
	settledAt := now
	s.SettledAt = &settledAt

	e.unsettled--
	if e.unsettled == 0 && m.State == domain.MarketStateResolved {
		m.State = domain.MarketStateSettled
	}
	m.UpdatedAt = now

	return cloneStake(*s), nil
}
