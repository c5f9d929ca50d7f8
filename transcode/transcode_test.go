package transcode

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/voicebloom/models"
	"github.com/cppla/voicebloom/repository/repotest"
	"github.com/cppla/voicebloom/storage"
)

type objects struct {
	mu        sync.Mutex
	data      map[string][]byte
	types     map[string]string
	uploadErr error
}

func newObjects(seed map[string][]byte) *objects {
	o := &objects{data: map[string][]byte{}, types: map[string]string{}}
	for k, v := range seed {
		o.data[k] = v
	}
	return o
}

func (o *objects) Upload(_ context.Context, p string, data []byte, contentType string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.uploadErr != nil {
		return "", o.uploadErr
	}
	o.data[p] = append([]byte(nil), data...)
	o.types[p] = contentType
	return p, nil
}

func (o *objects) SignedURL(_ context.Context, p string, _ time.Duration) (string, error) {
	return "https://signed.test/" + p, nil
}

func (o *objects) Download(_ context.Context, p string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.data[p]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (o *objects) Delete(_ context.Context, p string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.data, p)
	return nil
}

// prefixRunner "converts" by prefixing the input bytes.
type prefixRunner struct {
	calls int
	err   error
}

func (r *prefixRunner) Run(_ context.Context, src, dst string) error {
	r.calls++
	if r.err != nil {
		return r.err
	}
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("mp3:"), in...), 0o600)
}

func recording(id, audio string, created time.Time) models.Recording {
	return models.Recording{ID: id, UserID: "u1", AudioURL: audio, Visibility: models.VisibilityPrivate, CreatedAt: created}
}

func TestTargetPath(t *testing.T) {
	assert.Equal(t, "u1/1.mp3", TargetPath("u1/1.webm"))
	assert.Equal(t, "u1/clip.mp3", TargetPath("u1/clip"))
	assert.Equal(t, "u1/a.webm.mp3", TargetPath("u1/a.webm.ogg"))
}

func TestConvert(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := repotest.NewRecordings(recording("r1", "u1/1.webm", t0))
	objs := newObjects(map[string][]byte{"u1/1.webm": []byte("webm")})
	runner := &prefixRunner{}
	job := &Job{Objects: objs, Recordings: recs, Runner: runner, TempDir: t.TempDir()}

	res, err := job.Convert(context.Background(), "u1/1.webm")
	require.NoError(t, err)
	assert.Equal(t, "u1/1.mp3", res.Target)
	assert.Equal(t, int64(1), res.Updated)
	assert.Equal(t, []byte("mp3:webm"), objs.data["u1/1.mp3"])
	assert.Equal(t, "audio/mpeg", objs.types["u1/1.mp3"])
	assert.Contains(t, objs.data, "u1/1.webm", "original object is kept")

	row, err := recs.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "u1/1.mp3", row.AudioURL)
}

func TestConvertFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("already mp3", func(t *testing.T) {
		job := &Job{Objects: newObjects(nil), Recordings: repotest.NewRecordings(), Runner: &prefixRunner{}}
		_, err := job.Convert(ctx, "u1/1.mp3")
		assert.ErrorIs(t, err, ErrAlreadyConverted)
	})

	t.Run("invalid path", func(t *testing.T) {
		job := &Job{Objects: newObjects(nil), Recordings: repotest.NewRecordings(), Runner: &prefixRunner{}}
		_, err := job.Convert(ctx, "../etc/passwd")
		assert.ErrorIs(t, err, storage.ErrInvalidPath)
	})

	t.Run("missing object", func(t *testing.T) {
		runner := &prefixRunner{}
		job := &Job{Objects: newObjects(nil), Recordings: repotest.NewRecordings(), Runner: runner}
		_, err := job.Convert(ctx, "u1/1.webm")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.Zero(t, runner.calls)
	})

	t.Run("runner fails", func(t *testing.T) {
		recs := repotest.NewRecordings(recording("r1", "u1/1.webm", time.Now()))
		objs := newObjects(map[string][]byte{"u1/1.webm": []byte("x")})
		job := &Job{Objects: objs, Recordings: recs, Runner: &prefixRunner{err: boom}, TempDir: t.TempDir()}
		_, err := job.Convert(ctx, "u1/1.webm")
		assert.ErrorIs(t, err, boom)
		assert.NotContains(t, objs.data, "u1/1.mp3")
		row, _ := recs.Get(ctx, "r1")
		assert.Equal(t, "u1/1.webm", row.AudioURL)
	})

	t.Run("upload fails", func(t *testing.T) {
		recs := repotest.NewRecordings(recording("r1", "u1/1.webm", time.Now()))
		objs := newObjects(map[string][]byte{"u1/1.webm": []byte("x")})
		objs.uploadErr = boom
		job := &Job{Objects: objs, Recordings: recs, Runner: &prefixRunner{}, TempDir: t.TempDir()}
		_, err := job.Convert(ctx, "u1/1.webm")
		assert.ErrorIs(t, err, boom)
		row, _ := recs.Get(ctx, "r1")
		assert.Equal(t, "u1/1.webm", row.AudioURL)
	})

	t.Run("update fails", func(t *testing.T) {
		recs := repotest.NewRecordings(recording("r1", "u1/1.webm", time.Now()))
		recs.Err = boom
		objs := newObjects(map[string][]byte{"u1/1.webm": []byte("x")})
		job := &Job{Objects: objs, Recordings: recs, Runner: &prefixRunner{}, TempDir: t.TempDir()}
		_, err := job.Convert(ctx, "u1/1.webm")
		assert.ErrorIs(t, err, boom)
	})
}

func TestPendingAndConvertAll(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := repotest.NewRecordings(
		recording("r1", "u1/1.webm", t0),
		recording("r2", "u1/2.mp3", t0.Add(time.Hour)),
		recording("r3", "u1/3.webm", t0.Add(2*time.Hour)),
	)
	objs := newObjects(map[string][]byte{"u1/1.webm": []byte("a")})
	job := &Job{Objects: objs, Recordings: recs, Runner: &prefixRunner{}, TempDir: t.TempDir()}

	paths, err := job.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1/1.webm", "u1/3.webm"}, paths)

	results := job.ConvertAll(ctx, paths)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, storage.ErrNotFound)
	assert.Equal(t, 1, Failed(results))

	left, err := job.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1/3.webm"}, left)
}

func TestConvertAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &prefixRunner{}
	job := &Job{Objects: newObjects(nil), Recordings: repotest.NewRecordings(), Runner: runner}
	results := job.ConvertAll(ctx, []string{"u1/1.webm", "u1/2.webm"})
	assert.Equal(t, 2, Failed(results))
	assert.Zero(t, runner.calls)
}
