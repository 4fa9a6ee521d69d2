package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authensus/marketd/internal/domain"
)

// TokenStore implements domain.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *pgxpool.Pool
}

var _ domain.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a new TokenStore backed by the given connection pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// UpsertMint inserts or updates the mint singleton.
func (s *TokenStore) UpsertMint(ctx context.Context, m domain.TokenMint) error {
	const query = `
		INSERT INTO token_mints (
			address, name, symbol, uri, decimals, authority, supply, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (address) DO UPDATE SET
			supply     = EXCLUDED.supply,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.Address.Hex(), m.Name, m.Symbol, m.URI,
		int16(m.Decimals), m.Authority.Hex(), int64(m.Supply), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert token mint: %w", err)
	}
	return nil
}

// GetMint retrieves the mint singleton.
func (s *TokenStore) GetMint(ctx context.Context) (domain.TokenMint, error) {
	var (
		m         domain.TokenMint
		addr      string
		decimals  int16
		authority string
		supply    int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT address, name, symbol, uri, decimals, authority, supply, created_at
		FROM token_mints LIMIT 1`).
		Scan(&addr, &m.Name, &m.Symbol, &m.URI, &decimals, &authority, &supply, &m.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.TokenMint{}, domain.ErrNotFound
		}
		return domain.TokenMint{}, fmt.Errorf("postgres: get token mint: %w", err)
	}
	m.Address = common.HexToHash(addr)
	m.Decimals = uint8(decimals)
	m.Authority = common.HexToAddress(authority)
	m.Supply = uint64(supply)
	return m, nil
}

// UpsertHolding inserts or updates one holder's balance.
func (s *TokenStore) UpsertHolding(ctx context.Context, h domain.TokenHolding) error {
	const query = `
		INSERT INTO token_holdings (owner, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (owner) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, h.Owner.Hex(), int64(h.Balance))
	if err != nil {
		return fmt.Errorf("postgres: upsert token holding %s: %w", h.Owner, err)
	}
	return nil
}

// ListHoldings returns every holder's balance.
func (s *TokenStore) ListHoldings(ctx context.Context) ([]domain.TokenHolding, error) {
	rows, err := s.pool.Query(ctx, `SELECT owner, balance FROM token_holdings`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list token holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.TokenHolding
	for rows.Next() {
		var (
			o       string
			balance int64
		)
		if err := rows.Scan(&o, &balance); err != nil {
			return nil, fmt.Errorf("postgres: scan token holding: %w", err)
		}
		holdings = append(holdings, domain.TokenHolding{
			Owner:   common.HexToAddress(o),
			Balance: uint64(balance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list token holdings rows: %w", err)
	}
	return holdings, nil
}

// GetHolding retrieves one holder's balance.
func (s *TokenStore) GetHolding(ctx context.Context, owner common.Address) (domain.TokenHolding, error) {
	var (
		h       domain.TokenHolding
		o       string
		balance int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT owner, balance FROM token_holdings WHERE owner = $1`, owner.Hex()).
		Scan(&o, &balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.TokenHolding{}, domain.ErrNotFound
		}
		return domain.TokenHolding{}, fmt.Errorf("postgres: get token holding %s: %w", owner, err)
	}
	h.Owner = common.HexToAddress(o)
	h.Balance = uint64(balance)
	return h, nil
}
