package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/voicebloom/models"
)

func TestRegistryGetIsPerUser(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemoryPersister(), nil, nil)

	a := r.Get(ctx, "alice")
	assert.Same(t, a, r.Get(ctx, "alice"))
	assert.NotSame(t, a, r.Get(ctx, "bob"))
}

func TestRegistryDropDeletesSnapshot(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	r := NewRegistry(p, nil, nil)

	r.Get(ctx, "alice").SetRecordings([]models.RecordingView{{ID: "r1"}})
	_, err := p.Load(ctx, KeyPrefix+"alice")
	require.NoError(t, err)

	require.NoError(t, r.Drop(ctx, "alice"))
	_, err = p.Load(ctx, KeyPrefix+"alice")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Empty(t, r.Get(ctx, "alice").Recordings())
}

func TestRegistrySweep(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	r := NewRegistry(nil, nil, clock.Now)

	r.Get(ctx, "alice").AddToast(ToastInput{Title: "one"})
	r.Get(ctx, "bob").AddToast(ToastInput{Title: "two"})
	assert.Zero(t, r.Sweep())

	clock.Advance(ToastTTL + time.Millisecond)
	assert.Equal(t, 2, r.Sweep())
}

func TestRegistrySweeperNotifiesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := newClock()
	r := NewRegistry(nil, nil, clock.Now)
	s := r.Get(ctx, "alice")
	s.AddToast(ToastInput{Title: "bye"})

	seen := make(chan Snapshot, 4)
	defer s.Subscribe(func(snap Snapshot) { seen <- snap })()

	clock.Advance(ToastTTL)
	r.StartSweeper(ctx, 10*time.Millisecond)

	select {
	case snap := <-seen:
		assert.Empty(t, snap.Toasts)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not remove the expired toast")
	}
}

func TestSQLitePersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := OpenSQLitePersister(filepath.Join(t.TempDir(), "sessions", "state.db"))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, p.Save(ctx, "k", []byte(`{"a":1}`)))
	require.NoError(t, p.Save(ctx, "k", []byte(`{"a":2}`)))
	got, err := p.Load(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(got))

	require.NoError(t, p.Delete(ctx, "k"))
	_, err = p.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRegistryRestoresFromSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	p, err := OpenSQLitePersister(path)
	require.NoError(t, err)
	defer p.Close()

	NewRegistry(p, nil, nil).Get(ctx, "alice").SetRecording(true)
	assert.True(t, NewRegistry(p, nil, nil).Get(ctx, "alice").Snapshot().IsRecording)
}

func TestRegistryEvictsIdleStores(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	p := NewMemoryPersister()
	r := NewRegistry(p, nil, clock.Now).WithIdleTTL(10 * time.Minute)

	first := r.Get(ctx, "alice")
	first.SetRecordings([]models.RecordingView{{ID: "r1"}})
	first.SetPendingAudio(&PendingAudio{Data: []byte("clip"), ContentType: "audio/webm"})
	r.Get(ctx, "bob")

	clock.Advance(9 * time.Minute)
	r.Get(ctx, "bob")
	r.Sweep()
	assert.Equal(t, 2, r.Len(), "nothing is idle long enough yet")

	clock.Advance(2 * time.Minute)
	r.Sweep()
	assert.Equal(t, 1, r.Len(), "alice was unused for 11 minutes")

	again := r.Get(ctx, "alice")
	assert.NotSame(t, first, again)
	require.Len(t, again.Recordings(), 1)
	assert.Equal(t, "r1", again.Recordings()[0].ID)
	require.NotNil(t, again.PendingAudio())
	assert.Equal(t, "clip", string(again.PendingAudio().Data))
}

func TestRegistryKeepsSubscribedStores(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	r := NewRegistry(NewMemoryPersister(), nil, clock.Now).WithIdleTTL(time.Minute)

	s := r.Get(ctx, "alice")
	unsubscribe := s.Subscribe(func(Snapshot) {})
	clock.Advance(time.Hour)
	r.Sweep()
	assert.Same(t, s, r.Get(ctx, "alice"))

	unsubscribe()
	clock.Advance(time.Hour)
	r.Sweep()
	assert.Zero(t, r.Len())
}

func TestRegistryDropClosesHeldStore(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	r := NewRegistry(p, nil, nil)

	held := r.Get(ctx, "alice")
	held.SetPendingAudio(&PendingAudio{Data: []byte("clip")})
	var notified int
	held.Subscribe(func(Snapshot) { notified++ })

	require.NoError(t, r.Drop(ctx, "alice"))
	select {
	case <-held.Done():
	default:
		t.Fatal("dropped store is not closed")
	}
	assert.Zero(t, held.Subscribers())

	held.SetRecording(true)
	assert.Zero(t, notified)
	_, err := p.Load(ctx, KeyPrefix+"alice")
	assert.ErrorIs(t, err, ErrNoSnapshot, "late mutations do not resurrect the snapshot")
	_, err = p.Load(ctx, AudioKey(KeyPrefix+"alice"))
	assert.ErrorIs(t, err, ErrNoSnapshot)

	assert.False(t, r.Get(ctx, "alice").Snapshot().IsRecording)
}
