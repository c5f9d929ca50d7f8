package utils

import (
	"context"
	"sync"
	"time"
)

const blacklistPrefix = "jwt:blacklist:"

// expiringSet is the single-instance fallback for Redis keys with a TTL.
type expiringSet struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func newExpiringSet() *expiringSet {
	return &expiringSet{items: map[string]time.Time{}}
}

func (s *expiringSet) add(key string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, exp := range s.items {
		if !now.Before(exp) {
			delete(s.items, k)
		}
	}
	s.items[key] = expiresAt
}

// has reports a live entry; consume also removes it.
func (s *expiringSet) has(key string, consume bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.items[key]
	if !ok {
		return false
	}
	live := time.Now().Before(exp)
	if consume || !live {
		delete(s.items, key)
	}
	return live
}

var revokedTokens = newExpiringSet()

// BlacklistToken revokes a token until its natural expiration.
func BlacklistToken(ctx context.Context, token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, blacklistPrefix+token, "1", ttl).Err(); err == nil {
			return
		}
	}
	revokedTokens.add(token, expiresAt)
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(ctx context.Context, token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		n, err := rc.Exists(ctx, blacklistPrefix+token).Result()
		cancel()
		if err == nil && n > 0 {
			return true
		}
		// a Redis outage falls through to entries written while it was down
	}
	return revokedTokens.has(token, false)
}
