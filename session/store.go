// Package session keeps the per-user client cache: recordings already fetched,
// live toasts, the recording flag and a pending audio buffer. Every mutation is
// flushed to a Persister so a reconnecting client sees the same state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/voicebloom/models"
)

const persistTimeout = 2 * time.Second

// PendingAudio is a recorded clip the client has not saved yet.
type PendingAudio struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
}

// AudioKey is where the pending clip of the snapshot at key is kept. The clip
// is written only when it changes, not on every mutation.
func AudioKey(key string) string { return key + ":audio" }

// Snapshot is a consistent copy of the cache state.
type Snapshot struct {
	Recordings   []models.RecordingView `json:"recordings"`
	Toasts       []Toast                `json:"toasts"`
	IsRecording  bool                   `json:"is_recording"`
	PendingAudio *PendingAudio          `json:"pending_audio,omitempty"`
}

// Options configure a Store. Zero values are usable.
type Options struct {
	// Key identifies the snapshot in the persister.
	Key       string
	Persister Persister
	Logger    *zap.Logger
	Now       func() time.Time
}

// Store is the cache of a single user. It is safe for concurrent use; each
// operation runs to completion before the next one observes the state.
type Store struct {
	mu         sync.Mutex
	opts       Options
	state      Snapshot
	subs       map[int]func(Snapshot)
	nextSub    int
	audioDirty bool
	closed     bool
	done       chan struct{}
}

// New returns an empty store.
func New(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		opts:  opts,
		state: Snapshot{Recordings: []models.RecordingView{}, Toasts: []Toast{}},
		subs:  make(map[int]func(Snapshot)),
		done:  make(chan struct{}),
	}
}

// Restore returns a store seeded from the persisted snapshot, or an empty one
// when nothing was saved yet.
func Restore(ctx context.Context, opts Options) (*Store, error) {
	s := New(opts)
	if opts.Persister == nil || opts.Key == "" {
		return s, nil
	}
	data, err := opts.Persister.Load(ctx, opts.Key)
	if errors.Is(err, ErrNoSnapshot) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("load session snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return s, fmt.Errorf("decode session snapshot: %w", err)
	}
	if snap.Recordings == nil {
		snap.Recordings = []models.RecordingView{}
	}
	if snap.Toasts == nil {
		snap.Toasts = []Toast{}
	}
	s.state = snap
	s.pruneLocked()

	audio, err := opts.Persister.Load(ctx, AudioKey(opts.Key))
	if errors.Is(err, ErrNoSnapshot) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("load pending audio: %w", err)
	}
	var pa PendingAudio
	if err := json.Unmarshal(audio, &pa); err != nil {
		return s, fmt.Errorf("decode pending audio: %w", err)
	}
	s.state.PendingAudio = &pa
	return s, nil
}

// Recordings returns the cached recordings.
func (s *Store) Recordings() []models.RecordingView {
	return s.Snapshot().Recordings
}

// SetRecordings replaces the cached list wholesale.
func (s *Store) SetRecordings(list []models.RecordingView) {
	s.mutate(func(st *Snapshot) bool {
		st.Recordings = append([]models.RecordingView{}, list...)
		return true
	})
}

// PatchRecording merges patch into the cached recording with id. It reports
// false and leaves the list untouched when no such recording is cached.
func (s *Store) PatchRecording(id string, patch models.RecordingPatch) bool {
	return s.mutate(func(st *Snapshot) bool {
		for i := range st.Recordings {
			if st.Recordings[i].ID == id {
				patch.ApplyView(&st.Recordings[i])
				return true
			}
		}
		return false
	})
}

// RemoveRecording drops the cached recording with id.
func (s *Store) RemoveRecording(id string) bool {
	return s.mutate(func(st *Snapshot) bool {
		for i := range st.Recordings {
			if st.Recordings[i].ID == id {
				st.Recordings = append(st.Recordings[:i:i], st.Recordings[i+1:]...)
				return true
			}
		}
		return false
	})
}

// AddToast appends a toast and returns it with its assigned id.
func (s *Store) AddToast(in ToastInput) Toast {
	var t Toast
	s.mutate(func(st *Snapshot) bool {
		t = newToast(in, s.opts.Now())
		st.Toasts = append(st.Toasts, t)
		return true
	})
	return t
}

// RemoveToast dismisses the toast with id. Unknown ids are a no-op.
func (s *Store) RemoveToast(id string) bool {
	return s.mutate(func(st *Snapshot) bool {
		for i := range st.Toasts {
			if st.Toasts[i].ID == id {
				st.Toasts = append(st.Toasts[:i:i], st.Toasts[i+1:]...)
				return true
			}
		}
		return false
	})
}

// Toasts returns the toasts that are still live.
func (s *Store) Toasts() []Toast {
	return s.Snapshot().Toasts
}

// SetRecording sets the capture-in-progress flag.
func (s *Store) SetRecording(on bool) {
	s.mutate(func(st *Snapshot) bool {
		st.IsRecording = on
		return true
	})
}

// SetPendingAudio holds a clip until it is saved or discarded.
func (s *Store) SetPendingAudio(a *PendingAudio) {
	s.mutate(func(st *Snapshot) bool {
		if a == nil {
			if st.PendingAudio == nil {
				return false
			}
			st.PendingAudio = nil
			s.audioDirty = true
			return true
		}
		st.PendingAudio = &PendingAudio{Data: append([]byte(nil), a.Data...), ContentType: a.ContentType}
		s.audioDirty = true
		return true
	})
}

// ClearPendingAudio drops the held clip.
func (s *Store) ClearPendingAudio() {
	s.SetPendingAudio(nil)
}

// PendingAudio returns the held clip, if any.
func (s *Store) PendingAudio() *PendingAudio {
	return s.Snapshot().PendingAudio
}

// Snapshot returns a copy of the state with expired toasts removed.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	changed := s.pruneLocked()
	snap := s.copyLocked()
	if changed {
		s.persistLocked(snap)
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	if changed {
		notify(subs, snap)
	}
	return snap
}

// Prune removes expired toasts and reports how many were removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	before := len(s.state.Toasts)
	if !s.pruneLocked() {
		s.mu.Unlock()
		return 0
	}
	removed := before - len(s.state.Toasts)
	snap := s.copyLocked()
	s.persistLocked(snap)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snap)
	return removed
}

// Close detaches the store after its user signed out: later mutations stay in
// memory only, subscribers are released and Done is closed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.subs = make(map[int]func(Snapshot))
	close(s.done)
}

// Done is closed by Close.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// Subscribers reports how many subscriptions are open.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscribe registers fn to receive every snapshot after a change.
// The returned func unregisters it. Subscribing to a closed store is a no-op.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// mutate applies fn under the lock. When fn reports a change the new state is
// flushed to the persister and pushed to subscribers.
func (s *Store) mutate(fn func(*Snapshot) bool) bool {
	s.mu.Lock()
	pruned := s.pruneLocked()
	changed := fn(&s.state)
	if !changed && !pruned {
		s.mu.Unlock()
		return false
	}
	snap := s.copyLocked()
	s.persistLocked(snap)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snap)
	return changed
}

func (s *Store) pruneLocked() bool {
	now := s.opts.Now()
	live := s.state.Toasts[:0:0]
	for _, t := range s.state.Toasts {
		if !t.Expired(now) {
			live = append(live, t)
		}
	}
	if len(live) == len(s.state.Toasts) {
		return false
	}
	s.state.Toasts = live
	return true
}

func (s *Store) copyLocked() Snapshot {
	snap := Snapshot{
		Recordings:  append([]models.RecordingView{}, s.state.Recordings...),
		Toasts:      append([]Toast{}, s.state.Toasts...),
		IsRecording: s.state.IsRecording,
	}
	if s.state.PendingAudio != nil {
		pa := *s.state.PendingAudio
		pa.Data = append([]byte(nil), pa.Data...)
		snap.PendingAudio = &pa
	}
	return snap
}

func (s *Store) persistLocked(snap Snapshot) {
	if s.closed || s.opts.Persister == nil || s.opts.Key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	audio := snap.PendingAudio
	snap.PendingAudio = nil
	data, err := json.Marshal(snap)
	if err != nil {
		s.opts.Logger.Warn("session snapshot encode failed", zap.String("key", s.opts.Key), zap.Error(err))
		return
	}
	if err := s.opts.Persister.Save(ctx, s.opts.Key, data); err != nil {
		s.opts.Logger.Warn("session snapshot save failed", zap.String("key", s.opts.Key), zap.Error(err))
	}

	if !s.audioDirty {
		return
	}
	s.audioDirty = false
	key := AudioKey(s.opts.Key)
	if audio == nil {
		err = s.opts.Persister.Delete(ctx, key)
	} else if data, err = json.Marshal(audio); err == nil {
		err = s.opts.Persister.Save(ctx, key, data)
	}
	if err != nil {
		s.opts.Logger.Warn("session audio save failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) subscribersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
