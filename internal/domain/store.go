package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts carries common pagination and time-range filters.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market records. The in-process ledger remains the
// serialization point; stores are write-through durability and read models.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	GetByAddress(ctx context.Context, addr common.Hash) (Market, error)
	GetByToken(ctx context.Context, token common.Address) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// StakeStore persists stake records.
type StakeStore interface {
	Upsert(ctx context.Context, s Stake) error
	GetByID(ctx context.Context, id common.Hash) (Stake, error)
	ListByMarket(ctx context.Context, market common.Hash, opts ListOpts) ([]Stake, error)
	ListByBettor(ctx context.Context, bettor common.Address, opts ListOpts) ([]Stake, error)
}

// TreasuryStore persists the treasury singleton and its account book.
type TreasuryStore interface {
	Upsert(ctx context.Context, t Treasury) error
	Get(ctx context.Context) (Treasury, error)
	UpsertAccount(ctx context.Context, a TreasuryAccount) error
	GetAccount(ctx context.Context, owner common.Address) (TreasuryAccount, error)
	ListAccounts(ctx context.Context) ([]TreasuryAccount, error)
}

// TokenStore persists the mint singleton and token holdings.
type TokenStore interface {
	UpsertMint(ctx context.Context, m TokenMint) error
	GetMint(ctx context.Context) (TokenMint, error)
	UpsertHolding(ctx context.Context, h TokenHolding) error
	GetHolding(ctx context.Context, owner common.Address) (TokenHolding, error)
	ListHoldings(ctx context.Context) ([]TokenHolding, error)
}

// AuditEntry is one immutable audit-log record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore appends and reads the permanent audit trail of ledger
// operations.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
