package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketCache is a read-through cache of market snapshots, indexed both by
// market address and by reference token.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	Get(ctx context.Context, addr common.Hash) (Market, error)
	GetByToken(ctx context.Context, token common.Address) (Market, error)
	Invalidate(ctx context.Context, addr common.Hash) error
}

// StreamMessage is one entry read from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus publishes ledger events to interested subscribers, with an
// ephemeral pub/sub path and a durable stream path.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides distributed mutual exclusion for operations that
// must not run concurrently across instances, such as facet resolution.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when
	// another holder owns the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces a request budget per key within a rolling window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
