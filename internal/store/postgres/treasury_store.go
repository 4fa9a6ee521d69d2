package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authensus/marketd/internal/domain"
)

// TreasuryStore implements domain.TreasuryStore using PostgreSQL. The
// treasury table holds at most one row; counterparty balances live in
// treasury_accounts.
type TreasuryStore struct {
	pool *pgxpool.Pool
}

var _ domain.TreasuryStore = (*TreasuryStore)(nil)

// NewTreasuryStore creates a new TreasuryStore backed by the given connection pool.
func NewTreasuryStore(pool *pgxpool.Pool) *TreasuryStore {
	return &TreasuryStore{pool: pool}
}

// Upsert inserts or updates the treasury singleton.
func (s *TreasuryStore) Upsert(ctx context.Context, t domain.Treasury) error {
	const query = `
		INSERT INTO treasury (
			address, authority, balance, voting_tokens, nonce, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (address) DO UPDATE SET
			balance       = EXCLUDED.balance,
			voting_tokens = EXCLUDED.voting_tokens,
			nonce         = EXCLUDED.nonce,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		t.Address.Hex(), t.Authority.Hex(),
		int64(t.Balance), int64(t.VotingTokens), int64(t.Nonce), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert treasury: %w", err)
	}
	return nil
}

// Get retrieves the treasury singleton.
func (s *TreasuryStore) Get(ctx context.Context) (domain.Treasury, error) {
	var (
		t            domain.Treasury
		addr         string
		authority    string
		balance      int64
		votingTokens int64
		nonce        int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT address, authority, balance, voting_tokens, nonce, created_at, updated_at
		FROM treasury LIMIT 1`).
		Scan(&addr, &authority, &balance, &votingTokens, &nonce, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Treasury{}, domain.ErrNotFound
		}
		return domain.Treasury{}, fmt.Errorf("postgres: get treasury: %w", err)
	}
	t.Address = common.HexToHash(addr)
	t.Authority = common.HexToAddress(authority)
	t.Balance = uint64(balance)
	t.VotingTokens = uint64(votingTokens)
	t.Nonce = uint64(nonce)
	return t, nil
}

// UpsertAccount inserts or updates one counterparty balance.
func (s *TreasuryStore) UpsertAccount(ctx context.Context, a domain.TreasuryAccount) error {
	const query = `
		INSERT INTO treasury_accounts (owner, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (owner) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, a.Owner.Hex(), int64(a.Balance))
	if err != nil {
		return fmt.Errorf("postgres: upsert treasury account %s: %w", a.Owner, err)
	}
	return nil
}

// ListAccounts returns every counterparty balance.
func (s *TreasuryStore) ListAccounts(ctx context.Context) ([]domain.TreasuryAccount, error) {
	rows, err := s.pool.Query(ctx, `SELECT owner, balance FROM treasury_accounts`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list treasury accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.TreasuryAccount
	for rows.Next() {
		var (
			o       string
			balance int64
		)
		if err := rows.Scan(&o, &balance); err != nil {
			return nil, fmt.Errorf("postgres: scan treasury account: %w", err)
		}
		accounts = append(accounts, domain.TreasuryAccount{
			Owner:   common.HexToAddress(o),
			Balance: uint64(balance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list treasury accounts rows: %w", err)
	}
	return accounts, nil
}

// GetAccount retrieves one counterparty balance.
func (s *TreasuryStore) GetAccount(ctx context.Context, owner common.Address) (domain.TreasuryAccount, error) {
	var (
		a       domain.TreasuryAccount
		o       string
		balance int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT owner, balance FROM treasury_accounts WHERE owner = $1`, owner.Hex()).
		Scan(&o, &balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.TreasuryAccount{}, domain.ErrNotFound
		}
		return domain.TreasuryAccount{}, fmt.Errorf("postgres: get treasury account %s: %w", owner, err)
	}
	a.Owner = common.HexToAddress(o)
	a.Balance = uint64(balance)
	return a, nil
}
