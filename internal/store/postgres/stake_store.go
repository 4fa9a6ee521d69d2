package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authensus/marketd/internal/domain"
)

// StakeStore implements domain.StakeStore using PostgreSQL.
type StakeStore struct {
	pool *pgxpool.Pool
}

var _ domain.StakeStore = (*StakeStore)(nil)

// NewStakeStore creates a new StakeStore backed by the given connection pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

// Upsert inserts or updates a single stake.
func (s *StakeStore) Upsert(ctx context.Context, st domain.Stake) error {
	const query = `
		INSERT INTO stakes (
			id, market, bettor, facet, outcome,
			amount, settled, payout, placed_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			amount     = EXCLUDED.amount,
			settled    = EXCLUDED.settled,
			payout     = EXCLUDED.payout,
			settled_at = EXCLUDED.settled_at`

	_, err := s.pool.Exec(ctx, query,
		st.ID.Hex(), st.Market.Hex(), st.Bettor.Hex(),
		string(st.Facet), st.Outcome,
		int64(st.Amount), st.Settled, int64(st.Payout),
		st.PlacedAt, st.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert stake %s: %w", st.ID, err)
	}
	return nil
}

const stakeCols = `id, market, bettor, facet, outcome,
	amount, settled, payout, placed_at, settled_at`

// scanStake scans a single stake row into a domain.Stake.
func scanStake(row pgx.Row) (domain.Stake, error) {
	var (
		st     domain.Stake
		id     string
		market string
		bettor string
		facet  string
		amount int64
		payout int64
	)
	err := row.Scan(
		&id, &market, &bettor, &facet, &st.Outcome,
		&amount, &st.Settled, &payout, &st.PlacedAt, &st.SettledAt,
	)
	if err != nil {
		return domain.Stake{}, err
	}
	st.ID = common.HexToHash(id)
	st.Market = common.HexToHash(market)
	st.Bettor = common.HexToAddress(bettor)
	st.Facet = domain.Facet(facet)
	st.Amount = uint64(amount)
	st.Payout = uint64(payout)
	return st, nil
}

// GetByID retrieves a stake by its derived identity.
func (s *StakeStore) GetByID(ctx context.Context, id common.Hash) (domain.Stake, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stakeCols+` FROM stakes WHERE id = $1`, id.Hex())
	st, err := scanStake(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Stake{}, domain.ErrNotFound
		}
		return domain.Stake{}, fmt.Errorf("postgres: get stake %s: %w", id, err)
	}
	return st, nil
}

// ListByMarket returns the stakes of one market, oldest first.
func (s *StakeStore) ListByMarket(ctx context.Context, market common.Hash, opts domain.ListOpts) ([]domain.Stake, error) {
	return s.list(ctx, "market", market.Hex(), opts)
}

// ListByBettor returns one participant's stakes across markets, oldest first.
func (s *StakeStore) ListByBettor(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Stake, error) {
	return s.list(ctx, "bettor", bettor.Hex(), opts)
}

func (s *StakeStore) list(ctx context.Context, col, val string, opts domain.ListOpts) ([]domain.Stake, error) {
	query := `SELECT ` + stakeCols + ` FROM stakes WHERE ` + col + ` = $1`
	args := []any{val}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND placed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND placed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY placed_at ASC"

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
		return nil, fmt.Errorf("postgres: list stakes by %s: %w", col, err)
	}
	defer rows.Close()

	var stakes []domain.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		stakes = append(stakes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list stakes rows: %w", err)
	}
	return stakes, nil
}
