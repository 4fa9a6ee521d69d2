package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/authensus/marketd/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes with JSON-
// serialized Market data and a secondary token-to-market index.
//
// Key schema:
//
//	market:{address}     - hash with field "data" containing JSON
//	market:token:{token} - string value of the market address
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(addr common.Hash) string        { return "market:" + addr.Hex() }
func marketTokenKey(tok common.Address) string { return "market:token:" + tok.Hex() }

// Set stores a Market in the cache with a 5-minute TTL and indexes its
// reference token to the market address.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Address, err)
	}

	key := marketKey(market.Address)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, marketTTL)
	pipe.Set(ctx, marketTokenKey(market.ReferenceToken), market.Address.Hex(), marketTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.Address, err)
	}
	return nil
}

// Get retrieves a Market by its address from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, addr common.Hash) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(addr), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", addr, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", addr, err)
	}
	return market, nil
}

// GetByToken looks up a Market by its reference token.
// It returns domain.ErrNotFound if the token mapping or market does not exist.
func (mc *MarketCache) GetByToken(ctx context.Context, token common.Address) (domain.Market, error) {
	addr, err := mc.rdb.Get(ctx, marketTokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by token %s: %w", token, err)
	}

	return mc.Get(ctx, common.HexToHash(addr))
}

// Invalidate removes a Market and its token index entry from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, addr common.Hash) error {
	// Retrieve the market first so the reverse index entry can be cleaned up.
	market, err := mc.Get(ctx, addr)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate market %s: %w", addr, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, marketKey(addr))

	// Only delete the token mapping if the market was successfully read.
	if err == nil {
		pipe.Del(ctx, marketTokenKey(market.ReferenceToken))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", addr, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
