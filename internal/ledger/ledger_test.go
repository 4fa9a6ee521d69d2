package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	carol  = common.HexToAddress("0x0000000000000000000000000000000000000c03")
	token  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	token2 = common.HexToAddress("0x00000000000000000000000000000000000000f2")
)

// fakeClock is a mutable time source shared with the ledger under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func newTestLedger(t *testing.T) (*Ledger, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(WithClock(clock.Now)), clock
}

func mustInitialise(t *testing.T, l *Ledger, facets ...domain.Facet) domain.Market {
	t.Helper()
	if len(facets) == 0 {
		facets = []domain.Facet{domain.FacetTruthfulness}
	}
	m, err := l.Initialise(admin, token, facets, 48*time.Hour)
	if err != nil {
		t.Fatalf("initialise market: %v", err)
	}
	return m
}

func TestInitialise(t *testing.T) {
	l, _ := newTestLedger(t)

	m := mustInitialise(t, l, domain.FacetTruthfulness, domain.FacetOriginality)

	if m.State != domain.MarketStateOpen {
		t.Errorf("state = %s, want open", m.State)
	}
	if m.Address != domain.MarketAddress(token) {
		t.Errorf("address mismatch: %s", m.Address)
	}
	if m.Round != 1 {
		t.Errorf("round = %d, want 1", m.Round)
	}
	if len(m.Pools) != 2 {
		t.Errorf("pools = %d, want 2", len(m.Pools))
	}
}

func TestInitialiseDuplicateFails(t *testing.T) {
	l, _ := newTestLedger(t)
	mustInitialise(t, l)

	// Different facets and timeout must not matter: the token identity
	// alone determines the address.
	_, err := l.Initialise(admin, token, []domain.Facet{domain.FacetAuthenticity}, 72*time.Hour)
	if !errors.Is(err, domain.ErrMarketAlreadyExists) {
		t.Fatalf("err = %v, want ErrMarketAlreadyExists", err)
	}

	if _, err := l.Initialise(admin, token2, []domain.Facet{domain.FacetAuthenticity}, 72*time.Hour); err != nil {
		t.Fatalf("second token should be independent: %v", err)
	}
}

func TestInitialiseValidation(t *testing.T) {
	l, _ := newTestLedger(t)

	tests := []struct {
		name    string
		facets  []domain.Facet
		timeout time.Duration
		wantErr error
	}{
		{"no facets", nil, 48 * time.Hour, domain.ErrNoFacets},
		{"unknown facet", []domain.Facet{"vibes"}, 48 * time.Hour, domain.ErrUnknownFacet},
		{"duplicate facet", []domain.Facet{domain.FacetTruthfulness, domain.FacetTruthfulness}, 48 * time.Hour, domain.ErrDuplicateFacet},
		{"timeout too short", []domain.Facet{domain.FacetTruthfulness}, time.Hour, domain.ErrTimeoutOutOfRange},
		{"timeout too long", []domain.Facet{domain.FacetTruthfulness}, 15 * 24 * time.Hour, domain.ErrTimeoutOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Initialise(admin, token, tt.facets, tt.timeout)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlaceStakeValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	mustInitialise(t, l, domain.FacetTruthfulness)

	tests := []struct {
		name    string
		facet   domain.Facet
		outcome string
		amount  uint64
		wantErr error
	}{
		{"unrecognized facet", "vibes", "true", 10, domain.ErrUnknownFacet},
		{"facet not in market", domain.FacetOriginality, "true", 10, domain.ErrUnknownFacet},
		{"zero amount", domain.FacetTruthfulness, "true", 0, domain.ErrInvalidAmount},
		{"empty outcome", domain.FacetTruthfulness, "", 10, domain.ErrInvalidOutcome},
		{"reserved void outcome", domain.FacetTruthfulness, domain.VoidOutcome, 10, domain.ErrInvalidOutcome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.PlaceStake(alice, token, tt.facet, tt.outcome, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlaceStakeAccumulates(t *testing.T) {
	l, _ := newTestLedger(t)
	mustInitialise(t, l)

	s1, err := l.PlaceStake(alice, token, domain.FacetTruthfulness, "true", 100)
	if err != nil {
		t.Fatalf("first stake: %v", err)
	}
	s2, err := l.PlaceStake(alice, token, domain.FacetTruthfulness, "true", 50)
	if err != nil {
		t.Fatalf("second stake: %v", err)
	}
	if s1.ID != s2.ID {
		t.Errorf("repeat stake created a new record: %s vs %s", s1.ID, s2.ID)
	}
	if s2.Amount != 150 {
		t.Errorf("amount = %d, want 150", s2.Amount)
	}

	m, err := l.Market(token)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	pool := m.Pools[domain.FacetTruthfulness]
	if pool.Total != 150 || pool.Outcomes["true"] != 150 {
		t.Errorf("pool = %+v, want total 150 on true", pool)
	}
	if pool.Stakes != 1 {
		t.Errorf("stakes = %d, want 1", pool.Stakes)
	}
}

func TestPoolMatchesStakeSum(t *testing.T) {
	l, _ := newTestLedger(t)
	m := mustInitialise(t, l)

	stakes := []struct {
		bettor  common.Address
		outcome string
		amount  uint64
	}{
		{alice, "true", 300},
		{bob, "true", 100},
		{carol, "false", 200},
		{alice, "false", 25},
	}
	for _, s := range stakes {
		if _, err := l.PlaceStake(s.bettor, token, domain.FacetTruthfulness, s.outcome, s.amount); err != nil {
			t.Fatalf("stake %v: %v", s, err)
		}
	}

	all, err := l.StakesByMarket(m.Address)
	if err != nil {
		t.Fatalf("stakes by market: %v", err)
	}
	var sum uint64
	for _, s := range all {
		sum += s.Amount
	}

	got, err := l.Market(token)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if got.Pools[domain.FacetTruthfulness].Total != sum {
		t.Errorf("pool total %d != stake sum %d", got.Pools[domain.FacetTruthfulness].Total, sum)
	}
}

func TestDeadlineEnforcement(t *testing.T) {
	l, clock := newTestLedger(t)
	mustInitialise(t, l)

	if _, err := l.PlaceStake(alice, token, domain.FacetTruthfulness, "true", 10); err != nil {
		t.Fatalf("stake before deadline: %v", err)
	}

	// No intermediate call observes the deadline; the first late stake
	// must still be rejected.
	clock.Advance(49 * time.Hour)

	_, err := l.PlaceStake(bob, token, domain.FacetTruthfulness, "true", 10)
	if !errors.Is(err, domain.ErrMarketNotOpen) {
		t.Fatalf("err = %v, want ErrMarketNotOpen", err)
	}

	m, err := l.Market(token)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if m.State != domain.MarketStateClosed {
		t.Errorf("state = %s, want closed after lazy deadline check", m.State)
	}
}

func TestConcurrentStakesSerialize(t *testing.T) {
	l, _ := newTestLedger(t)
	mustInitialise(t, l)

	const workers = 32
	const perWorker = 25

	var wg sync.WaitGroup
	bettors := []common.Address{alice, bob, carol}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bettor := bettors[i%len(bettors)]
			outcome := "true"
			if i%2 == 1 {
				outcome = "false"
			}
			for j := 0; j < perWorker; j++ {
				if _, err := l.PlaceStake(bettor, token, domain.FacetTruthfulness, outcome, 1); err != nil {
					t.Errorf("concurrent stake: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	m, err := l.Market(token)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if got := m.Pools[domain.FacetTruthfulness].Total; got != workers*perWorker {
		t.Errorf("pool total = %d, want %d (lost updates)", got, workers*perWorker)
	}
}
