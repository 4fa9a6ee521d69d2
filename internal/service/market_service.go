// Package service coordinates the in-process ledger with persistence,
// caching, and event distribution. The ledger remains the serialization
// point for all state transitions; services mirror accepted transitions
// into PostgreSQL, invalidate Redis caches, and publish bus events.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
	"github.com/authensus/marketd/internal/ledger"
)

// resolveLockTTL bounds how long a resolution lock may be held before it
// expires on its own.
const resolveLockTTL = 10 * time.Second

// MarketService exposes the market ledger operations with write-through
// persistence and event publication.
type MarketService struct {
	ledger   *ledger.Ledger
	markets  domain.MarketStore
	stakes   domain.StakeStore
	cache    domain.MarketCache
	bus      domain.SignalBus
	locks    domain.LockManager
	audit    domain.AuditStore
	treasury *TreasuryService
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	ldg *ledger.Ledger,
	markets domain.MarketStore,
	stakes domain.StakeStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	audit domain.AuditStore,
	treasury *TreasuryService,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		ledger:   ldg,
		markets:  markets,
		stakes:   stakes,
		cache:    cache,
		bus:      bus,
		locks:    locks,
		audit:    audit,
		treasury: treasury,
		logger:   logger,
	}
}

// Rehydrate rebuilds the in-process ledger from the persistent store. It is
// called once at startup, before the server accepts requests.
func (s *MarketService) Rehydrate(ctx context.Context) error {
	markets, err := s.markets.List(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("market_service: rehydrate list markets: %w", err)
	}

	for _, m := range markets {
		stakes, err := s.stakes.ListByMarket(ctx, m.Address, domain.ListOpts{})
		if err != nil {
			return fmt.Errorf("market_service: rehydrate stakes for %s: %w", m.Address, err)
		}
		if err := s.ledger.Restore(m, stakes); err != nil {
			return fmt.Errorf("market_service: restore market %s: %w", m.Address, err)
		}
	}

	s.logger.InfoContext(ctx, "market_service: rehydrated ledger",
		slog.Int("markets", len(markets)),
	)
	return nil
}

// Initialise creates the market for a reference token and persists it.
func (s *MarketService) Initialise(ctx context.Context, admin, token common.Address, facets []domain.Facet, timeout time.Duration) (domain.Market, error) {
	m, err := s.ledger.Initialise(admin, token, facets, timeout)
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist market %s: %w", m.Address, err)
	}

	s.logAudit(ctx, "market_created", map[string]any{
		"market": m.Address.Hex(),
		"token":  token.Hex(),
		"admin":  admin.Hex(),
	})
	s.publish(ctx, domain.ChannelMarket, domain.MarketCreatedEvent{
		Market:         m.Address,
		ReferenceToken: token,
		Facets:         m.Facets,
		Deadline:       m.Deadline(),
	})

	return m, nil
}

// PlaceStake records a stake and persists the updated stake and market.
func (s *MarketService) PlaceStake(ctx context.Context, bettor, token common.Address, facet domain.Facet, outcome string, amount uint64) (domain.Stake, error) {
	st, err := s.ledger.PlaceStake(bettor, token, facet, outcome, amount)
	if err != nil {
		return domain.Stake{}, err
	}

	m, err := s.ledger.Market(token)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("market_service: reload market for %s: %w", token, err)
	}

	if err := s.stakes.Upsert(ctx, st); err != nil {
		return domain.Stake{}, fmt.Errorf("market_service: persist stake %s: %w", st.ID, err)
	}
	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Stake{}, fmt.Errorf("market_service: persist market %s: %w", m.Address, err)
	}
	s.invalidate(ctx, m.Address)

	s.publish(ctx, domain.ChannelStake, domain.StakePlacedEvent{
		Market:  m.Address,
		Stake:   st.ID,
		Bettor:  bettor,
		Facet:   facet,
		Outcome: outcome,
		Amount:  amount,
		Pool:    m.Pools[facet].Total,
	})

	return st, nil
}

// Resolve freezes one facet's winning outcome under a distributed lock, so
// concurrent resolution attempts across instances serialize.
func (s *MarketService) Resolve(ctx context.Context, caller, token common.Address, facet domain.Facet, outcome string) (domain.Resolution, error) {
	addr := domain.MarketAddress(token)

	unlock, err := s.locks.Acquire(ctx, "resolve:"+addr.Hex(), resolveLockTTL)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("market_service: resolve lock %s: %w", addr, err)
	}
	defer unlock()

	res, err := s.ledger.Resolve(caller, token, facet, outcome)
	if err != nil {
		return domain.Resolution{}, err
	}

	m, err := s.ledger.MarketByAddress(addr)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("market_service: reload market %s: %w", addr, err)
	}
	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Resolution{}, fmt.Errorf("market_service: persist market %s: %w", addr, err)
	}
	s.invalidate(ctx, addr)

	s.logAudit(ctx, "facet_resolved", map[string]any{
		"market": addr.Hex(),
		"facet":  string(facet),
		"winner": outcome,
	})
	s.publish(ctx, domain.ChannelResolution, domain.FacetResolvedEvent{
		Market:      addr,
		Facet:       facet,
		Winner:      res.Winner,
		PoolTotal:   res.PoolTotal,
		WinningPool: res.WinningPool,
		AllResolved: len(m.Resolutions) == len(m.Facets),
	})

	return res, nil
}

// Settle releases one stake's payout, credits it to the bettor's treasury
// account, and persists both records.
func (s *MarketService) Settle(ctx context.Context, id common.Hash) (domain.Stake, error) {
	st, err := s.ledger.Settle(id)
	if err != nil {
		return domain.Stake{}, err
	}

	if st.Payout > 0 {
		if err := s.treasury.CreditPayout(ctx, st.Bettor, st.Payout); err != nil {
			// The ledger already marked the stake settled; surface the
			// credit failure rather than silently dropping the payout.
			return domain.Stake{}, fmt.Errorf("market_service: credit payout for %s: %w", st.ID, err)
		}
	}

	m, err := s.ledger.MarketByAddress(st.Market)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("market_service: reload market %s: %w", st.Market, err)
	}
	if err := s.stakes.Upsert(ctx, st); err != nil {
		return domain.Stake{}, fmt.Errorf("market_service: persist stake %s: %w", st.ID, err)
	}
	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Stake{}, fmt.Errorf("market_service: persist market %s: %w", m.Address, err)
	}
	s.invalidate(ctx, m.Address)

	s.publish(ctx, domain.ChannelSettlement, domain.StakeSettledEvent{
		Market: st.Market,
		Stake:  st.ID,
		Bettor: st.Bettor,
		Facet:  st.Facet,
		Payout: st.Payout,
	})

	return st, nil
}

// GetMarket retrieves the market for a reference token, checking the cache
// first and falling back to the ledger on a miss.
func (s *MarketService) GetMarket(ctx context.Context, token common.Address) (domain.Market, error) {
	m, err := s.cache.GetByToken(ctx, token)
	if err == nil {
		return m, nil
	}

	m, err = s.ledger.Market(token)
	if err != nil {
		return domain.Market{}, err
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market", m.Address.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// GetMarketByAddress retrieves a market by its derived address.
func (s *MarketService) GetMarketByAddress(ctx context.Context, addr common.Hash) (domain.Market, error) {
	m, err := s.cache.Get(ctx, addr)
	if err == nil {
		return m, nil
	}

	m, err = s.ledger.MarketByAddress(addr)
	if err != nil {
		return domain.Market{}, err
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market", addr.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns every market, newest first.
func (s *MarketService) ListMarkets(ctx context.Context) []domain.Market {
	return s.ledger.Markets()
}

// GetStake returns one stake by its derived identity.
func (s *MarketService) GetStake(ctx context.Context, id common.Hash) (domain.Stake, error) {
	return s.ledger.Stake(id)
}

// ListStakesByMarket returns every stake in a market, in placement order.
func (s *MarketService) ListStakesByMarket(ctx context.Context, addr common.Hash) ([]domain.Stake, error) {
	return s.ledger.StakesByMarket(addr)
}

// ListStakesByBettor returns one participant's stakes across all markets
// from the persistent store.
func (s *MarketService) ListStakesByBettor(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Stake, error) {
	stakes, err := s.stakes.ListByBettor(ctx, bettor, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list stakes by bettor %s: %w", bettor, err)
	}
	return stakes, nil
}

// invalidate drops a cached market. Failures are logged, not returned; the
// cache expires on its own.
func (s *MarketService) invalidate(ctx context.Context, addr common.Hash) {
	if err := s.cache.Invalidate(ctx, addr); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market", addr.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// publish sends an event to its pub/sub channel and appends it to the
// durable ledger stream. Failures are logged, never returned.
func (s *MarketService) publish(ctx context.Context, channel string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamLedger, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: stream append failed",
			slog.String("stream", domain.StreamLedger),
			slog.String("error", err.Error()),
		)
	}
}

// logAudit appends an audit entry. Failures are logged, never returned.
func (s *MarketService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
