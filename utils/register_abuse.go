package utils

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

func regKey(parts ...string) string {
	return "reg:" + strings.Join(parts, ":")
}

// SignupGuard throttles account creation per client IP: a cooldown between
// attempts and a cap on successful sign-ups per calendar day. Redis keeps
// the counters when configured; otherwise they live in process memory.
// Redis failures fail open.
type SignupGuard struct {
	cooldown   time.Duration
	dailyLimit int
	now        func() time.Time

	mu    sync.Mutex
	until map[string]time.Time
	daily map[string]int
}

// NewSignupGuard returns a guard; zero cooldown and limit disable the checks.
func NewSignupGuard(cooldown time.Duration, dailyLimit int, now func() time.Time) *SignupGuard {
	if now == nil {
		now = time.Now
	}
	return &SignupGuard{
		cooldown:   cooldown,
		dailyLimit: dailyLimit,
		now:        now,
		until:      map[string]time.Time{},
		daily:      map[string]int{},
	}
}

// Allow reports whether ip may attempt a sign-up now. A permitted attempt
// starts the cooldown.
func (g *SignupGuard) Allow(ctx context.Context, ip string) bool {
	if g == nil {
		return true
	}
	return g.underDailyLimit(ctx, ip) && g.tryCooldown(ctx, ip)
}

// Record counts a successful sign-up from ip.
func (g *SignupGuard) Record(ctx context.Context, ip string) {
	if g == nil || g.dailyLimit <= 0 {
		return
	}
	day := g.now().UTC().Format("20060102")
	if cli := GetRedis(); cli != nil {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		key := regKey("succday", ip, day)
		if err := cli.Incr(ctx, key).Err(); err == nil {
			_ = cli.Expire(ctx, key, 24*time.Hour).Err()
		}
		return
	}
	g.mu.Lock()
	g.daily[ip+"|"+day]++
	g.mu.Unlock()
}

func (g *SignupGuard) tryCooldown(ctx context.Context, ip string) bool {
	if g.cooldown <= 0 {
		return true
	}
	if cli := GetRedis(); cli != nil {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		ok, err := cli.SetNX(ctx, regKey("cooldown", ip), "1", g.cooldown).Result()
		if err != nil {
			return true
		}
		return ok
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if until, ok := g.until[ip]; ok && now.Before(until) {
		return false
	}
	g.until[ip] = now.Add(g.cooldown)
	for k, until := range g.until {
		if !now.Before(until) && k != ip {
			delete(g.until, k)
		}
	}
	return true
}

func (g *SignupGuard) underDailyLimit(ctx context.Context, ip string) bool {
	if g.dailyLimit <= 0 {
		return true
	}
	day := g.now().UTC().Format("20060102")
	if cli := GetRedis(); cli != nil {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		n, err := cli.Get(ctx, regKey("succday", ip, day)).Int()
		if err == redis.Nil {
			return true
		} else if err != nil {
			return true
		}
		return n < g.dailyLimit
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.daily {
		if !strings.HasSuffix(k, "|"+day) {
			delete(g.daily, k)
		}
	}
	return g.daily[ip+"|"+day] < g.dailyLimit
}
