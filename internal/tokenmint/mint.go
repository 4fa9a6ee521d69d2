// Package tokenmint implements the voting-token factory. Initialisation is
// a whitelist-of-one: the deployment expects exactly one token
// configuration, and every field is checked with its own error kind so a
// caller can tell which parameter was wrong. Minting creates the
// recipient's holding on first use.
package tokenmint

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// InitParams carries the token metadata supplied at initialisation.
type InitParams struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	URI      string `json:"uri"`
	Decimals uint8  `json:"decimals"`
}

// Service is the in-process mint state.
type Service struct {
	mu        sync.Mutex
	now       func() time.Time
	authority common.Address
	mint      *domain.TokenMint
	holdings  map[common.Address]uint64
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service whose Init only accepts the designated authority.
func New(authority common.Address, opts ...Option) *Service {
	s := &Service{
		now:       time.Now,
		authority: authority,
		holdings:  make(map[common.Address]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the singleton token. Validation order and error kinds
// follow the deployment contract: signer first, then name, symbol, uri,
// decimals, each with its own distinct code.
func (s *Service) Init(signer common.Address, params InitParams) (domain.TokenMint, error) {
	if signer != s.authority {
		return domain.TokenMint{}, domain.ErrWrongSigner
	}
	if params.Name != domain.TokenName {
		return domain.TokenMint{}, domain.ErrWrongName
	}
	if params.Symbol != domain.TokenSymbol {
		return domain.TokenMint{}, domain.ErrWrongSymbol
	}
	if params.URI != domain.TokenURI {
		return domain.TokenMint{}, domain.ErrWrongURI
	}
	if params.Decimals != domain.TokenDecimals {
		return domain.TokenMint{}, domain.ErrWrongDecimals
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mint != nil {
		return domain.TokenMint{}, domain.ErrMintAlreadyInitialised
	}

	s.mint = &domain.TokenMint{
		Address:   domain.MintAddress(),
		Name:      params.Name,
		Symbol:    params.Symbol,
		URI:       params.URI,
		Decimals:  params.Decimals,
		Authority: s.authority,
		CreatedAt: s.now().UTC(),
	}
	return *s.mint, nil
}

// Restore installs a previously persisted mint and holdings, bypassing the
// initialise checks. It is used to rebuild the in-process state from
// durable storage at startup.
func (s *Service) Restore(m domain.TokenMint, holdings []domain.TokenHolding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mint != nil {
		return domain.ErrMintAlreadyInitialised
	}

	mint := m
	s.mint = &mint
	for _, h := range holdings {
		s.holdings[h.Owner] = h.Balance
	}
	return nil
}

// MintTokens mints amount to the recipient, creating its holding if
// absent. Any payer may mint; the whitelist lives at Init.
func (s *Service) MintTokens(recipient common.Address, amount uint64) (domain.TokenHolding, error) {
	if amount == 0 {
		return domain.TokenHolding{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mint == nil {
		return domain.TokenHolding{}, domain.ErrMintNotInitialised
	}

	s.holdings[recipient] += amount
	s.mint.Supply += amount
	return domain.TokenHolding{Owner: recipient, Balance: s.holdings[recipient]}, nil
}

// Mint returns the singleton token record.
func (s *Service) Mint() (domain.TokenMint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mint == nil {
		return domain.TokenMint{}, domain.ErrMintNotInitialised
	}
	return *s.mint, nil
}

// Holding returns one owner's balance. Owners that have never received a
// mint report domain.ErrNotFound.
func (s *Service) Holding(owner common.Address) (domain.TokenHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mint == nil {
		return domain.TokenHolding{}, domain.ErrMintNotInitialised
	}
	bal, ok := s.holdings[owner]
	if !ok {
		return domain.TokenHolding{}, domain.ErrNotFound
	}
	return domain.TokenHolding{Owner: owner, Balance: bal}, nil
}
