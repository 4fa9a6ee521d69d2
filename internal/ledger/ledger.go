// Package ledger implements the parimutuel market core: a content-addressed
// registry of markets, per-facet stake pools, a single-resolution state
// machine, and proportional payout math. Every operation is a single atomic
// state transition serialized per market; persistence and caching live in
// the service layer on top of this package.
package ledger

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// Ledger holds every market and stake record for the deployment. Markets
// are keyed by their deterministic address, so a duplicate initialise for
// the same reference token collides instead of overwriting.
type Ledger struct {
	mu      sync.RWMutex
	markets map[common.Hash]*entry
	stakes  map[common.Hash]common.Hash // stake id -> market address
	now     func() time.Time
}

// entry pairs a market with its stakes and a mutex that serializes all
// state transitions against it. Concurrent stakes into the same facet
// serialize here; pool totals are never read-modify-written outside it.
type entry struct {
	mu        sync.Mutex
	market    domain.Market
	stakes    map[common.Hash]*domain.Stake
	order     []common.Hash
	unsettled int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source. Tests use this to drive the lazy
// deadline evaluation deterministically.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		markets: make(map[common.Hash]*entry),
		stakes:  make(map[common.Hash]common.Hash),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialise creates the market for the given reference token. It fails
// with ErrMarketAlreadyExists when a market for that token exists,
// regardless of the facets or timeout supplied.
func (l *Ledger) Initialise(admin common.Address, token common.Address, facets []domain.Facet, timeout time.Duration) (domain.Market, error) {
	if err := domain.ValidateFacets(facets); err != nil {
		return domain.Market{}, err
	}
	if timeout < domain.MinTimeout || timeout > domain.MaxTimeout {
		return domain.Market{}, domain.ErrTimeoutOutOfRange
	}

	addr := domain.MarketAddress(token)
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.markets[addr]; ok {
		return domain.Market{}, domain.ErrMarketAlreadyExists
	}

	m := domain.Market{
		Address:        addr,
		Admin:          admin,
		ReferenceToken: token,
		Facets:         append([]domain.Facet(nil), facets...),
		Timeout:        timeout,
		CreatedAt:      now,
		State:          domain.MarketStateOpen,
		Round:          1,
		Pools:          make(map[domain.Facet]*domain.Pool, len(facets)),
		Resolutions:    make(map[domain.Facet]*domain.Resolution, len(facets)),
		UpdatedAt:      now,
	}
	for _, f := range facets {
		m.Pools[f] = &domain.Pool{Outcomes: make(map[string]uint64)}
	}

	l.markets[addr] = &entry{
		market: m,
		stakes: make(map[common.Hash]*domain.Stake),
	}

	return cloneMarket(m), nil
}

// Restore installs a previously persisted market and its stakes, bypassing
// validation. It is used to rebuild the in-process state from durable
// storage at startup and fails if the market is already present.
func (l *Ledger) Restore(m domain.Market, stakes []domain.Stake) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.markets[m.Address]; ok {
		return domain.ErrMarketAlreadyExists
	}

	e := &entry{
		market: cloneMarket(m),
		stakes: make(map[common.Hash]*domain.Stake, len(stakes)),
		order:  make([]common.Hash, 0, len(stakes)),
	}
	for _, s := range stakes {
		cp := cloneStake(s)
		e.stakes[cp.ID] = &cp
		e.order = append(e.order, cp.ID)
		if !cp.Settled {
			e.unsettled++
		}
		l.stakes[cp.ID] = m.Address
	}
	l.markets[m.Address] = e
	return nil
}

// Market returns the market for a reference token.
func (l *Ledger) Market(token common.Address) (domain.Market, error) {
	return l.MarketByAddress(domain.MarketAddress(token))
}

// MarketByAddress returns the market at the given address.
func (l *Ledger) MarketByAddress(addr common.Hash) (domain.Market, error) {
	e, err := l.lookup(addr)
	if err != nil {
		return domain.Market{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneMarket(e.market), nil
}

// Markets returns a snapshot of every market, newest first.
func (l *Ledger) Markets() []domain.Market {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.markets))
	for _, e := range l.markets {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]domain.Market, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, cloneMarket(e.market))
		e.mu.Unlock()
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Stake returns one stake by its id.
func (l *Ledger) Stake(id common.Hash) (domain.Stake, error) {
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
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stakes[id]
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}
	return cloneStake(*s), nil
}

// StakesByMarket returns every stake in a market, in placement order.
func (l *Ledger) StakesByMarket(addr common.Hash) ([]domain.Stake, error) {
	e, err := l.lookup(addr)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Stake, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, cloneStake(*e.stakes[id]))
	}
	return out, nil
}

func (l *Ledger) lookup(addr common.Hash) (*entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.markets[addr]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func cloneMarket(m domain.Market) domain.Market {
	out := m
	out.Facets = append([]domain.Facet(nil), m.Facets...)
	out.Pools = make(map[domain.Facet]*domain.Pool, len(m.Pools))
	for f, p := range m.Pools {
		cp := *p
		cp.Outcomes = make(map[string]uint64, len(p.Outcomes))
		for o, amt := range p.Outcomes {
			cp.Outcomes[o] = amt
		}
		out.Pools[f] = &cp
	}
	out.Resolutions = make(map[domain.Facet]*domain.Resolution, len(m.Resolutions))
	for f, r := range m.Resolutions {
		cr := *r
		out.Resolutions[f] = &cr
	}
	return out
}

func cloneStake(s domain.Stake) domain.Stake {
	if s.SettledAt != nil {
		t := *s.SettledAt
		s.SettledAt = &t
	}
	return s
}
