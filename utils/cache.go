package utils

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCacheTTL = time.Minute
	cacheTimeout    = 2 * time.Second
)

// CacheGetJSON decodes the Redis value at key into out. Without Redis every
// lookup misses.
func CacheGetJSON(ctx context.Context, key string, out interface{}) bool {
	rc := GetRedis()
	if rc == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		Logger.Debug("cache miss", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		Logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// CacheSetJSON stores v as JSON; a non-positive ttl uses the default.
func CacheSetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		Logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// CacheDelete drops keys so the next read goes to the database.
func CacheDelete(ctx context.Context, keys ...string) {
	rc := GetRedis()
	if rc == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := rc.Del(ctx, keys...).Err(); err != nil {
		Logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
