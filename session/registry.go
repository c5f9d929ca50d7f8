package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// KeyPrefix namespaces persisted snapshots.
	KeyPrefix = "voicebloom:session:"
	// DefaultIdleTTL is how long an unused store stays loaded.
	DefaultIdleTTL = 30 * time.Minute
)

type entry struct {
	store    *Store
	lastUsed time.Time
}

// Registry hands out one Store per user, restoring it from the persister on
// first use. Stores without subscribers that go unused for the idle TTL are
// unloaded by Sweep; their state is already persisted and comes back on the
// next Get.
type Registry struct {
	mu        sync.Mutex
	stores    map[string]*entry
	persister Persister
	logger    *zap.Logger
	now       func() time.Time
	idleTTL   time.Duration
}

func NewRegistry(p Persister, logger *zap.Logger, now func() time.Time) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		stores:    make(map[string]*entry),
		persister: p,
		logger:    logger,
		now:       now,
		idleTTL:   DefaultIdleTTL,
	}
}

// WithIdleTTL sets how long unused stores stay loaded; non-positive keeps
// the default.
func (r *Registry) WithIdleTTL(d time.Duration) *Registry {
	if d > 0 {
		r.mu.Lock()
		r.idleTTL = d
		r.mu.Unlock()
	}
	return r
}

// Get returns the store of userID. A snapshot that cannot be restored is
// logged and replaced by an empty store. Restores run outside the registry
// lock so a slow persister only delays its own user.
func (r *Registry) Get(ctx context.Context, userID string) *Store {
	if s := r.loaded(userID); s != nil {
		return s
	}
	s, err := Restore(ctx, Options{
		Key:       KeyPrefix + userID,
		Persister: r.persister,
		Logger:    r.logger.With(zap.String("user_id", userID)),
		Now:       r.now,
	})
	if err != nil {
		r.logger.Warn("session restore failed", zap.String("user_id", userID), zap.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.stores[userID]; ok {
		// a concurrent Get restored first
		e.lastUsed = r.now()
		return e.store
	}
	r.stores[userID] = &entry{store: s, lastUsed: r.now()}
	return s
}

func (r *Registry) loaded(userID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stores[userID]
	if !ok {
		return nil
	}
	e.lastUsed = r.now()
	return e.store
}

// Len reports how many stores are loaded.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Drop forgets the user's store and its persisted state. Handles still held
// by in-flight requests are closed, so they neither persist nor notify.
func (r *Registry) Drop(ctx context.Context, userID string) error {
	r.mu.Lock()
	e, ok := r.stores[userID]
	delete(r.stores, userID)
	r.mu.Unlock()
	if ok {
		e.store.Close()
	}
	if r.persister == nil {
		return nil
	}
	key := KeyPrefix + userID
	if err := r.persister.Delete(ctx, AudioKey(key)); err != nil {
		return err
	}
	return r.persister.Delete(ctx, key)
}

// Sweep unloads idle stores, then prunes expired toasts from the rest. It
// returns the number of toasts removed.
func (r *Registry) Sweep() int {
	now := r.now()
	evicted := 0
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for id, e := range r.stores {
		if now.Sub(e.lastUsed) >= r.idleTTL && e.store.Subscribers() == 0 {
			delete(r.stores, id)
			evicted++
			continue
		}
		stores = append(stores, e.store)
	}
	r.mu.Unlock()
	if evicted > 0 {
		r.logger.Debug("idle sessions unloaded", zap.Int("count", evicted))
	}

	removed := 0
	for _, s := range stores {
		removed += s.Prune()
	}
	return removed
}

// StartSweeper sweeps every interval until ctx is done, so subscribers see
// toasts disappear without another request.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.Debug("expired toasts removed", zap.Int("count", n))
				}
			}
		}
	}()
}
