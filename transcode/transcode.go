// Package transcode converts stored browser recordings to MP3 so they play
// everywhere. Conversion shells out to ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/storage"
)

const (
	// TargetExt is the extension of converted objects.
	TargetExt = ".mp3"
	// SourceExt marks recordings still waiting for conversion.
	SourceExt   = ".webm"
	contentType = "audio/mpeg"
	bitrate     = "192k"
)

// ErrAlreadyConverted is returned for objects that are already MP3.
var ErrAlreadyConverted = errors.New("object is already mp3")

// Runner turns the audio file at src into an MP3 at dst.
type Runner interface {
	Run(ctx context.Context, src, dst string) error
}

// FFmpeg runs the ffmpeg binary found at Path, or on PATH when empty.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) Run(ctx context.Context, src, dst string) error {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, "-y", "-loglevel", "error", "-i", src, "-codec:a", "libmp3lame", "-b:a", bitrate, dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return nil
}

// Job moves recordings from their original encoding to MP3.
type Job struct {
	Objects    storage.ObjectStore
	Recordings repository.RecordingRepository
	Runner     Runner
	Logger     *zap.Logger
	// TempDir holds scratch files; empty uses the system default.
	TempDir string
}

// Result reports one conversion.
type Result struct {
	Source  string
	Target  string
	Bytes   int
	Updated int64
	Err     error
}

// TargetPath is objectPath with its extension replaced by .mp3.
func TargetPath(objectPath string) string {
	return strings.TrimSuffix(objectPath, path.Ext(objectPath)) + TargetExt
}

// Convert downloads objectPath, converts it, uploads the MP3 next to it and
// points every recording that referenced the old object at the new one. The
// original object is left in place.
func (j *Job) Convert(ctx context.Context, objectPath string) (Result, error) {
	res := Result{Source: objectPath}
	clean, err := storage.CleanPath(objectPath)
	if err != nil {
		return res, err
	}
	if strings.EqualFold(path.Ext(clean), TargetExt) {
		return res, ErrAlreadyConverted
	}
	res.Source = clean
	res.Target = TargetPath(clean)

	data, err := j.Objects.Download(ctx, clean)
	if err != nil {
		return res, fmt.Errorf("download %s: %w", clean, err)
	}

	dir, err := os.MkdirTemp(j.TempDir, "transcode-*")
	if err != nil {
		return res, err
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "input"+path.Ext(clean))
	dst := filepath.Join(dir, "output"+TargetExt)
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return res, err
	}
	if err := j.Runner.Run(ctx, src, dst); err != nil {
		return res, err
	}
	out, err := os.ReadFile(dst)
	if err != nil {
		return res, fmt.Errorf("read converted file: %w", err)
	}
	res.Bytes = len(out)

	if _, err := j.Objects.Upload(ctx, res.Target, out, contentType); err != nil {
		return res, fmt.Errorf("upload %s: %w", res.Target, err)
	}
	n, err := j.Recordings.UpdateAudioPath(ctx, clean, res.Target)
	if err != nil {
		return res, fmt.Errorf("update recordings: %w", err)
	}
	res.Updated = n
	j.logger().Info("recording converted",
		zap.String("source", clean),
		zap.String("target", res.Target),
		zap.Int64("rows", n))
	return res, nil
}

// Pending lists object paths of recordings that still use the source
// encoding, oldest first. limit <= 0 means no limit.
func (j *Job) Pending(ctx context.Context, limit int) ([]string, error) {
	rows, err := j.Recordings.ListByAudioSuffix(ctx, SourceExt, limit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	paths := make([]string, 0, len(rows))
	for _, r := range rows {
		if seen[r.AudioURL] {
			continue
		}
		seen[r.AudioURL] = true
		paths = append(paths, r.AudioURL)
	}
	return paths, nil
}

// ConvertAll converts paths one after another. It stops early only when ctx
// is cancelled; per-path failures are carried in the results.
func (j *Job) ConvertAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		if ctx.Err() != nil {
			results = append(results, Result{Source: p, Target: TargetPath(p), Err: ctx.Err()})
			continue
		}
		res, err := j.Convert(ctx, p)
		if err != nil {
			res.Err = err
			j.logger().Warn("recording conversion failed", zap.String("source", p), zap.Error(err))
		}
		results = append(results, res)
	}
	return results
}

// Failed counts results that carry an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func (j *Job) logger() *zap.Logger {
	if j.Logger == nil {
		return zap.NewNop()
	}
	return j.Logger
}
