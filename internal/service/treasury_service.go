package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
	"github.com/authensus/marketd/internal/treasury"
)

// TreasuryService exposes the escrow operations with write-through
// persistence. Settlement payouts land in counterparty accounts here.
type TreasuryService struct {
	escrow *treasury.Escrow
	store  domain.TreasuryStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewTreasuryService creates a TreasuryService with all required dependencies.
func NewTreasuryService(
	escrow *treasury.Escrow,
	store domain.TreasuryStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TreasuryService {
	return &TreasuryService{
		escrow: escrow,
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// Initialise creates the treasury singleton. Called at startup; an escrow
// that was already initialised is left untouched.
func (s *TreasuryService) Initialise(ctx context.Context, authority common.Address) (domain.Treasury, error) {
	rec, err := s.escrow.Initialise(authority)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyInitialised) {
			return s.escrow.Treasury()
		}
		return domain.Treasury{}, err
	}

	if err := s.store.Upsert(ctx, rec); err != nil {
		return domain.Treasury{}, fmt.Errorf("treasury_service: persist treasury: %w", err)
	}

	s.logAudit(ctx, "treasury_initialised", map[string]any{
		"treasury":  rec.Address.Hex(),
		"authority": authority.Hex(),
	})
	return rec, nil
}

// Rehydrate restores the escrow from the persistent store at startup. A
// missing row means the treasury was never initialised, which is not an
// error.
func (s *TreasuryService) Rehydrate(ctx context.Context) error {
	rec, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("treasury_service: rehydrate: %w", err)
	}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("treasury_service: rehydrate accounts: %w", err)
	}
	if err := s.escrow.Restore(rec, accounts); err != nil {
		return fmt.Errorf("treasury_service: restore escrow: %w", err)
	}
	s.logger.InfoContext(ctx, "treasury_service: rehydrated escrow",
		slog.String("treasury", rec.Address.Hex()),
		slog.Uint64("nonce", rec.Nonce),
	)
	return nil
}

// Deposit moves funds from a counterparty account into the treasury under
// the dual-proof requirement.
func (s *TreasuryService) Deposit(ctx context.Context, coparty common.Address, amount uint64, authorityProof, copartyProof []byte) (domain.Treasury, error) {
	rec, err := s.escrow.Deposit(coparty, amount, authorityProof, copartyProof)
	if err != nil {
		return domain.Treasury{}, err
	}
	if err := s.persistTransaction(ctx, rec, coparty); err != nil {
		return domain.Treasury{}, err
	}

	s.logAudit(ctx, "treasury_deposit", map[string]any{
		"coparty": coparty.Hex(),
		"amount":  amount,
		"nonce":   rec.Nonce,
	})
	return rec, nil
}

// Reimburse moves funds from the treasury back to a counterparty account
// under the dual-proof requirement.
func (s *TreasuryService) Reimburse(ctx context.Context, coparty common.Address, amount uint64, authorityProof, copartyProof []byte) (domain.Treasury, error) {
	rec, err := s.escrow.Reimburse(coparty, amount, authorityProof, copartyProof)
	if err != nil {
		return domain.Treasury{}, err
	}
	if err := s.persistTransaction(ctx, rec, coparty); err != nil {
		return domain.Treasury{}, err
	}

	s.logAudit(ctx, "treasury_reimburse", map[string]any{
		"coparty": coparty.Hex(),
		"amount":  amount,
		"nonce":   rec.Nonce,
	})
	return rec, nil
}

// ReceiveVotingTokens records voting tokens arriving at the treasury.
func (s *TreasuryService) ReceiveVotingTokens(ctx context.Context, amount, holdingBalance uint64, authorityProof []byte) (domain.Treasury, error) {
	rec, err := s.escrow.ReceiveVotingTokens(amount, holdingBalance, authorityProof)
	if err != nil {
		return domain.Treasury{}, err
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return domain.Treasury{}, fmt.Errorf("treasury_service: persist treasury: %w", err)
	}

	s.logAudit(ctx, "treasury_voting_tokens_received", map[string]any{
		"amount": amount,
		"total":  rec.VotingTokens,
	})
	return rec, nil
}

// CreditPayout adds a settlement payout to a bettor's counterparty account.
func (s *TreasuryService) CreditPayout(ctx context.Context, owner common.Address, amount uint64) error {
	acct, err := s.escrow.Credit(owner, amount)
	if err != nil {
		return err
	}
	if err := s.store.UpsertAccount(ctx, acct); err != nil {
		return fmt.Errorf("treasury_service: persist account %s: %w", owner, err)
	}
	return nil
}

// Treasury returns the current treasury record.
func (s *TreasuryService) Treasury(ctx context.Context) (domain.Treasury, error) {
	return s.escrow.Treasury()
}

// Account returns one counterparty's available balance.
func (s *TreasuryService) Account(ctx context.Context, owner common.Address) (domain.TreasuryAccount, error) {
	return s.escrow.Account(owner)
}

// persistTransaction mirrors a committed escrow transaction into the store:
// the treasury row and the touched counterparty account.
func (s *TreasuryService) persistTransaction(ctx context.Context, rec domain.Treasury, coparty common.Address) error {
	if err := s.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("treasury_service: persist treasury: %w", err)
	}
	acct, err := s.escrow.Account(coparty)
	if err != nil {
		return err
	}
	if err := s.store.UpsertAccount(ctx, acct); err != nil {
		return fmt.Errorf("treasury_service: persist account %s: %w", coparty, err)
	}
	return nil
}

func (s *TreasuryService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "treasury_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
