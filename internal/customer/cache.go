package customer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL は顧客IDキャッシュの保持期間のデフォルト値。
const DefaultCacheTTL = 24 * time.Hour

// RedisIDCache はRedisを使用した顧客IDキャッシュ。
// 顧客レコードは削除されないため、対応関係はTTLの間変化しない。
type RedisIDCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIDCache はRedisIDCacheを生成する。
func NewRedisIDCache(client *redis.Client, ttl time.Duration) *RedisIDCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisIDCache{client: client, ttl: ttl}
}

func cacheKey(telegramUserID int64) string {
	return fmt.Sprintf("tgshop:customer:tg:%d", telegramUserID)
}

// Get はキャッシュされた顧客IDを返す。存在しない場合はfalseを返す。
func (c *RedisIDCache) Get(ctx context.Context, telegramUserID int64) (int64, bool, error) {
	v, err := c.client.Get(ctx, cacheKey(telegramUserID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis customer cache get failed: %w", err)
	}

	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, nil
	}
	return id, true, nil
}

// Set は顧客IDをTTL付きで保存する。
func (c *RedisIDCache) Set(ctx context.Context, telegramUserID, customerID int64) error {
	if err := c.client.Set(ctx, cacheKey(telegramUserID), strconv.FormatInt(customerID, 10), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis customer cache set failed: %w", err)
	}
	return nil
}
