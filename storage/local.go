package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrBadSignature is returned by Verify for tampered or expired URLs.
var ErrBadSignature = errors.New("invalid or expired signature")

// LocalStore keeps objects on the filesystem and signs download URLs with
// HMAC-SHA256 so they can be served by the API itself.
type LocalStore struct {
	dir     string
	baseURL string
	key     []byte
	now     func() time.Time
}

// NewLocalStore creates dir when needed. baseURL is the public API origin;
// signed URLs point at baseURL + "/media/<path>".
func NewLocalStore(dir, baseURL string, signingKey []byte) (*LocalStore, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("local storage needs a signing key")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL, key: signingKey, now: time.Now}, nil
}

func (s *LocalStore) file(objectPath string) (string, string, error) {
	p, err := CleanPath(objectPath)
	if err != nil {
		return "", "", err
	}
	return p, filepath.Join(s.dir, filepath.FromSlash(p)), nil
}

func (s *LocalStore) Upload(_ context.Context, objectPath string, data []byte, _ string) (string, error) {
	p, full, err := s.file(objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	// write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("rename object: %w", err)
	}
	return p, nil
}

func (s *LocalStore) SignedURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	p, full, err := s.file(objectPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", err
	}
	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("sig", s.sign(p, expires))
	return s.baseURL + "/media/" + (&url.URL{Path: p}).EscapedPath() + "?" + q.Encode(), nil
}

func (s *LocalStore) Download(_ context.Context, objectPath string) ([]byte, error) {
	p, full, err := s.file(objectPath)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return b, err
}

func (s *LocalStore) Delete(_ context.Context, objectPath string) error {
	_, full, err := s.file(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Verify checks a signature produced by SignedURL and returns the filesystem
// path of the object.
func (s *LocalStore) Verify(objectPath, expires, sig string) (string, error) {
	p, full, err := s.file(objectPath)
	if err != nil {
		return "", err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return "", ErrBadSignature
	}
	want := s.sign(p, expires)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return "", ErrBadSignature
	}
	return full, nil
}

func (s *LocalStore) sign(objectPath, expires string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(objectPath))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}
