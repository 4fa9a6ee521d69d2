package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authensus/marketd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. Pools and
// resolutions are stored as JSONB; the in-process ledger owns their
// consistency, the database is a durable mirror.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	pools, err := json.Marshal(m.Pools)
	if err != nil {
		return fmt.Errorf("postgres: marshal pools for %s: %w", m.Address, err)
	}
	resolutions, err := json.Marshal(m.Resolutions)
	if err != nil {
		return fmt.Errorf("postgres: marshal resolutions for %s: %w", m.Address, err)
	}

	facets := make([]string, len(m.Facets))
	for i, f := range m.Facets {
		facets[i] = string(f)
	}

	const query = `
		INSERT INTO markets (
			address, admin, reference_token, facets, timeout_seconds,
			state, round, pools, resolutions, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, NOW()
		)
		ON CONFLICT (address) DO UPDATE SET
			state       = EXCLUDED.state,
			round       = EXCLUDED.round,
			pools       = EXCLUDED.pools,
			resolutions = EXCLUDED.resolutions,
			updated_at  = NOW()`

	_, err = s.pool.Exec(ctx, query,
		m.Address.Hex(), m.Admin.Hex(), m.ReferenceToken.Hex(),
		facets, int64(m.Timeout/time.Second),
		string(m.State), int16(m.Round), pools, resolutions, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.Address, err)
	}
	return nil
}

const marketCols = `address, admin, reference_token, facets, timeout_seconds,
	state, round, pools, resolutions, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m              domain.Market
		addr           string
		admin          string
		token          string
		facets         []string
		timeoutSeconds int64
		state          string
		round          int16
		pools          []byte
		resolutions    []byte
	)
	err := row.Scan(
		&addr, &admin, &token, &facets, &timeoutSeconds,
		&state, &round, &pools, &resolutions, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Address = common.HexToHash(addr)
	m.Admin = common.HexToAddress(admin)
	m.ReferenceToken = common.HexToAddress(token)
	m.Facets = make([]domain.Facet, len(facets))
	for i, f := range facets {
		m.Facets[i] = domain.Facet(f)
	}
	m.Timeout = time.Duration(timeoutSeconds) * time.Second
	m.State = domain.MarketState(state)
	m.Round = uint16(round)
	if err := json.Unmarshal(pools, &m.Pools); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal pools: %w", err)
	}
	if err := json.Unmarshal(resolutions, &m.Resolutions); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal resolutions: %w", err)
	}
	return m, nil
}

// GetByAddress retrieves a market by its derived address.
func (s *MarketStore) GetByAddress(ctx context.Context, addr common.Hash) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE address = $1`, addr.Hex())
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", addr, err)
	}
	return m, nil
}

// GetByToken retrieves the market for a reference token.
func (s *MarketStore) GetByToken(ctx context.Context, token common.Address) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE reference_token = $1`, token.Hex())
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by token %s: %w", token, err)
	}
	return m, nil
}

// List returns markets with pagination and optional time filtering, newest
// first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE TRUE`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// ListSettledBefore returns every fully settled market last updated strictly
// before the cutoff, oldest first. Used by the cold-storage archiver.
func (s *MarketStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE state = $1 AND updated_at < $2
		 ORDER BY updated_at ASC`,
		string(domain.MarketStateSettled), before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settled markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
