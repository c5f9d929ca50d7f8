// Package storage holds recording audio objects. Paths are bucket-relative
// keys such as "<user id>/<unix millis>.webm"; URLs handed to clients are
// always short-lived signed URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ErrInvalidPath is returned for keys that are empty, absolute or escape the bucket.
var ErrInvalidPath = errors.New("invalid object path")

// ObjectStore is the object storage collaborator.
type ObjectStore interface {
	// Upload writes data at objectPath, replacing any existing object, and
	// returns the stored path.
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	Download(ctx context.Context, objectPath string) ([]byte, error)
	Delete(ctx context.Context, objectPath string) error
}

// RecordingPath builds the storage key of a new recording.
func RecordingPath(userID string, now time.Time, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return userID + "/" + strconv.FormatInt(now.UnixMilli(), 10) + ext
}

// CleanPath validates and normalizes an object key.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

var extensions = map[string]string{
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/mp4":   ".m4a",
}

// ExtensionFor maps an audio content type to a file extension; unknown types
// are stored as webm, the browser recorder format.
func ExtensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := extensions[ct]; ok {
		return ext
	}
	return ".webm"
}

// ContentTypeFor is the inverse of ExtensionFor.
func ContentTypeFor(objectPath string) string {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
