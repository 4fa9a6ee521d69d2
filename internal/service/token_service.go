package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
	"github.com/authensus/marketd/internal/tokenmint"
)

// TokenService exposes the voting-token mint with write-through persistence.
type TokenService struct {
	mint   *tokenmint.Service
	store  domain.TokenStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewTokenService creates a TokenService with all required dependencies.
func NewTokenService(
	mint *tokenmint.Service,
	store domain.TokenStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TokenService {
	return &TokenService{
		mint:   mint,
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// Rehydrate restores the mint from the persistent store at startup. A
// missing row means the mint was never initialised, which is not an error.
func (s *TokenService) Rehydrate(ctx context.Context) error {
	m, err := s.store.GetMint(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("token_service: rehydrate: %w", err)
	}

	holdings, err := s.store.ListHoldings(ctx)
	if err != nil {
		return fmt.Errorf("token_service: rehydrate holdings: %w", err)
	}
	if err := s.mint.Restore(m, holdings); err != nil {
		return fmt.Errorf("token_service: restore mint: %w", err)
	}
	s.logger.InfoContext(ctx, "token_service: rehydrated mint",
		slog.Uint64("supply", m.Supply),
		slog.Int("holders", len(holdings)),
	)
	return nil
}

// Init creates the singleton voting token.
func (s *TokenService) Init(ctx context.Context, signer common.Address, params tokenmint.InitParams) (domain.TokenMint, error) {
	m, err := s.mint.Init(signer, params)
	if err != nil {
		return domain.TokenMint{}, err
	}

	if err := s.store.UpsertMint(ctx, m); err != nil {
		return domain.TokenMint{}, fmt.Errorf("token_service: persist mint: %w", err)
	}

	s.logAudit(ctx, "token_mint_initialised", map[string]any{
		"mint":   m.Address.Hex(),
		"name":   m.Name,
		"symbol": m.Symbol,
	})
	return m, nil
}

// MintTokens mints voting tokens to a recipient and persists the updated
// holding and supply.
func (s *TokenService) MintTokens(ctx context.Context, recipient common.Address, amount uint64) (domain.TokenHolding, error) {
	h, err := s.mint.MintTokens(recipient, amount)
	if err != nil {
		return domain.TokenHolding{}, err
	}

	m, err := s.mint.Mint()
	if err != nil {
		return domain.TokenHolding{}, err
	}
	if err := s.store.UpsertHolding(ctx, h); err != nil {
		return domain.TokenHolding{}, fmt.Errorf("token_service: persist holding %s: %w", recipient, err)
	}
	if err := s.store.UpsertMint(ctx, m); err != nil {
		return domain.TokenHolding{}, fmt.Errorf("token_service: persist mint: %w", err)
	}

	s.logAudit(ctx, "tokens_minted", map[string]any{
		"recipient": recipient.Hex(),
		"amount":    amount,
		"supply":    m.Supply,
	})
	return h, nil
}

// Mint returns the singleton token record.
func (s *TokenService) Mint(ctx context.Context) (domain.TokenMint, error) {
	return s.mint.Mint()
}

// Holding returns one owner's balance.
func (s *TokenService) Holding(ctx context.Context, owner common.Address) (domain.TokenHolding, error) {
	return s.mint.Holding(owner)
}

func (s *TokenService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "token_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
