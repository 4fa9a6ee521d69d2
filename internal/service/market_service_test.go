package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
	"github.com/authensus/marketd/internal/ledger"
	"github.com/authensus/marketd/internal/treasury"
)

// ---------------------------------------------------------------------------
// In-memory fakes. Each records enough to assert on the write-through path.
// ---------------------------------------------------------------------------

type memMarketStore struct {
	mu      sync.Mutex
	markets map[common.Hash]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[common.Hash]domain.Market)}
}

func (s *memMarketStore) Upsert(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.Address] = m
	return nil
}

func (s *memMarketStore) GetByAddress(ctx context.Context, addr common.Hash) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[addr]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) GetByToken(ctx context.Context, token common.Address) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.ReferenceToken == token {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *memMarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out, nil
}

func (s *memMarketStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

type memStakeStore struct {
	mu     sync.Mutex
	stakes map[common.Hash]domain.Stake
}

func newMemStakeStore() *memStakeStore {
	return &memStakeStore{stakes: make(map[common.Hash]domain.Stake)}
}

func (s *memStakeStore) Upsert(ctx context.Context, st domain.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stakes[st.ID] = st
	return nil
}

func (s *memStakeStore) GetByID(ctx context.Context, id common.Hash) (domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stakes[id]
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *memStakeStore) ListByMarket(ctx context.Context, market common.Hash, opts domain.ListOpts) ([]domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stake
	for _, st := range s.stakes {
		if st.Market == market {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *memStakeStore) ListByBettor(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stake
	for _, st := range s.stakes {
		if st.Bettor == bettor {
			out = append(out, st)
		}
	}
	return out, nil
}

type memTreasuryStore struct {
	mu       sync.Mutex
	rec      *domain.Treasury
	accounts map[common.Address]domain.TreasuryAccount
}

func newMemTreasuryStore() *memTreasuryStore {
	return &memTreasuryStore{accounts: make(map[common.Address]domain.TreasuryAccount)}
}

func (s *memTreasuryStore) Upsert(ctx context.Context, t domain.Treasury) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &t
	return nil
}

func (s *memTreasuryStore) Get(ctx context.Context) (domain.Treasury, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return domain.Treasury{}, domain.ErrNotFound
	}
	return *s.rec, nil
}

func (s *memTreasuryStore) UpsertAccount(ctx context.Context, a domain.TreasuryAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Owner] = a
	return nil
}

func (s *memTreasuryStore) GetAccount(ctx context.Context, owner common.Address) (domain.TreasuryAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[owner]
	if !ok {
		return domain.TreasuryAccount{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memTreasuryStore) ListAccounts(ctx context.Context) ([]domain.TreasuryAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TreasuryAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

// nullCache always misses so the service reads from the ledger.
type nullCache struct{}

func (nullCache) Set(ctx context.Context, m domain.Market) error { return nil }
func (nullCache) Get(ctx context.Context, addr common.Hash) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (nullCache) GetByToken(ctx context.Context, token common.Address) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (nullCache) Invalidate(ctx context.Context, addr common.Hash) error { return nil }

type recordingBus struct {
	mu        sync.Mutex
	published map[string]int
	appended  int
}

func newRecordingBus() *recordingBus {
	return &recordingBus{published: make(map[string]int)}
}

func (b *recordingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel]++
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *recordingBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended++
	return nil
}

func (b *recordingBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordingBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[channel]
}

type localLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
}

func newLocalLocks() *localLocks {
	return &localLocks{held: make(map[string]bool)}
}

func (l *localLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held[key] = false
	}, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc      *MarketService
	treasury *TreasuryService
	clock    *fakeClock
	markets  *memMarketStore
	stakes   *memStakeStore
	tstore   *memTreasuryStore
	bus      *recordingBus
	locks    *localLocks
	audit    *memAudit
}

var (
	admin     = common.HexToAddress("0x0000000000000000000000000000000000000101")
	authority = common.HexToAddress("0x0000000000000000000000000000000000000102")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b22")
	refToken  = common.HexToAddress("0x0000000000000000000000000000000000000f01")
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	esc := treasury.New(treasury.WithClock(clock.Now))
	if _, err := esc.Initialise(authority); err != nil {
		t.Fatalf("initialise escrow: %v", err)
	}

	f := &fixture{
		clock:   clock,
		markets: newMemMarketStore(),
		stakes:  newMemStakeStore(),
		tstore:  newMemTreasuryStore(),
		bus:     newRecordingBus(),
		locks:   newLocalLocks(),
		audit:   &memAudit{},
	}

	f.treasury = NewTreasuryService(esc, f.tstore, f.audit, logger)
	f.svc = NewMarketService(
		ledger.New(ledger.WithClock(clock.Now)),
		f.markets, f.stakes, nullCache{}, f.bus, f.locks, f.audit,
		f.treasury, logger,
	)
	return f
}

func (f *fixture) initMarket(t *testing.T) domain.Market {
	t.Helper()
	m, err := f.svc.Initialise(context.Background(), admin, refToken, domain.AllFacets, 48*time.Hour)
	if err != nil {
		t.Fatalf("initialise market: %v", err)
	}
	return m
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestInitialisePersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.initMarket(t)

	if _, err := f.markets.GetByAddress(ctx, m.Address); err != nil {
		t.Errorf("market not persisted: %v", err)
	}
	if got := f.bus.count(domain.ChannelMarket); got != 1 {
		t.Errorf("market events published = %d, want 1", got)
	}

	if _, err := f.svc.Initialise(ctx, admin, refToken, domain.AllFacets, 48*time.Hour); !errors.Is(err, domain.ErrMarketAlreadyExists) {
		t.Errorf("duplicate initialise err = %v, want ErrMarketAlreadyExists", err)
	}
}

func TestPlaceStakeWritesThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.initMarket(t)

	st, err := f.svc.PlaceStake(ctx, alice, refToken, domain.FacetTruthfulness, "yes", 300)
	if err != nil {
		t.Fatalf("place stake: %v", err)
	}

	persisted, err := f.stakes.GetByID(ctx, st.ID)
	if err != nil {
		t.Fatalf("stake not persisted: %v", err)
	}
	if persisted.Amount != 300 {
		t.Errorf("persisted amount = %d, want 300", persisted.Amount)
	}

	stored, err := f.markets.GetByAddress(ctx, m.Address)
	if err != nil {
		t.Fatalf("market not persisted: %v", err)
	}
	if stored.Pools[domain.FacetTruthfulness].Total != 300 {
		t.Errorf("persisted pool total = %d, want 300", stored.Pools[domain.FacetTruthfulness].Total)
	}
	if got := f.bus.count(domain.ChannelStake); got != 1 {
		t.Errorf("stake events published = %d, want 1", got)
	}
}

func TestResolveTakesDistributedLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.initMarket(t)

	if _, err := f.svc.PlaceStake(ctx, alice, refToken, domain.FacetTruthfulness, "yes", 100); err != nil {
		t.Fatalf("place stake: %v", err)
	}
	f.clock.Advance(49 * time.Hour)

	if _, err := f.svc.Resolve(ctx, admin, refToken, domain.FacetTruthfulness, "yes"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if f.locks.acquired != 1 {
		t.Errorf("lock acquisitions = %d, want 1", f.locks.acquired)
	}
	if got := f.bus.count(domain.ChannelResolution); got != 1 {
		t.Errorf("resolution events published = %d, want 1", got)
	}

	// A held lock surfaces as an error without touching the ledger.
	f.locks.held["resolve:"+m.Address.Hex()] = true
	if _, err := f.svc.Resolve(ctx, admin, refToken, domain.FacetOriginality, "yes"); !errors.Is(err, domain.ErrLockHeld) {
		t.Errorf("resolve with held lock err = %v, want ErrLockHeld", err)
	}
}

func TestSettleCreditsTreasuryAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initMarket(t)

	// Alice wins, Bob loses: 300 on yes, 200 on no.
	aliceStake, err := f.svc.PlaceStake(ctx, alice, refToken, domain.FacetTruthfulness, "yes", 300)
	if err != nil {
		t.Fatalf("alice stake: %v", err)
	}
	bobStake, err := f.svc.PlaceStake(ctx, bob, refToken, domain.FacetTruthfulness, "no", 200)
	if err != nil {
		t.Fatalf("bob stake: %v", err)
	}

	f.clock.Advance(49 * time.Hour)
	if _, err := f.svc.Resolve(ctx, admin, refToken, domain.FacetTruthfulness, "yes"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	settled, err := f.svc.Settle(ctx, aliceStake.ID)
	if err != nil {
		t.Fatalf("settle alice: %v", err)
	}
	if settled.Payout != 500 {
		t.Errorf("alice payout = %d, want 500", settled.Payout)
	}

	acct, err := f.treasury.Account(ctx, alice)
	if err != nil {
		t.Fatalf("alice account: %v", err)
	}
	if acct.Balance != 500 {
		t.Errorf("alice treasury balance = %d, want 500", acct.Balance)
	}

	// Losing stake settles with zero payout and no account credit.
	settled, err = f.svc.Settle(ctx, bobStake.ID)
	if err != nil {
		t.Fatalf("settle bob: %v", err)
	}
	if settled.Payout != 0 {
		t.Errorf("bob payout = %d, want 0", settled.Payout)
	}
	if _, err := f.tstore.GetAccount(ctx, bob); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("bob account err = %v, want ErrNotFound", err)
	}

	if got := f.bus.count(domain.ChannelSettlement); got != 2 {
		t.Errorf("settlement events published = %d, want 2", got)
	}
}

func TestRehydrateRestoresLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initMarket(t)
	st, err := f.svc.PlaceStake(ctx, alice, refToken, domain.FacetTruthfulness, "yes", 100)
	if err != nil {
		t.Fatalf("place stake: %v", err)
	}

	// Fresh service sharing the same stores simulates a process restart.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fresh := NewMarketService(
		ledger.New(ledger.WithClock(f.clock.Now)),
		f.markets, f.stakes, nullCache{}, f.bus, f.locks, f.audit,
		f.treasury, logger,
	)
	if err := fresh.Rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	m, err := fresh.GetMarket(ctx, refToken)
	if err != nil {
		t.Fatalf("get market after rehydrate: %v", err)
	}
	if m.Pools[domain.FacetTruthfulness].Total != 100 {
		t.Errorf("rehydrated pool total = %d, want 100", m.Pools[domain.FacetTruthfulness].Total)
	}
	got, err := fresh.GetStake(ctx, st.ID)
	if err != nil {
		t.Fatalf("get stake after rehydrate: %v", err)
	}
	if got.Amount != 100 {
		t.Errorf("rehydrated stake amount = %d, want 100", got.Amount)
	}
}
