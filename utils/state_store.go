package utils

import (
	"context"
	"time"
)

const (
	statePrefix     = "oauth:state:"
	defaultStateTTL = 10 * time.Minute
)

var oauthStates = newExpiringSet()

// SaveState stores an OAuth state token for the callback to consume.
func SaveState(ctx context.Context, state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, statePrefix+state, "1", ttl).Err(); err == nil {
			return
		}
	}
	oauthStates.add(state, time.Now().Add(ttl))
}

// ConsumeState validates and removes a state token. A state is accepted once.
func ConsumeState(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, statePrefix+state).Result(); err == nil && v != "" {
			return true
		}
	}
	return oauthStates.has(state, true)
}
