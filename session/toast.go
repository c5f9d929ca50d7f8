package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ToastTTL is how long a toast stays visible before it is removed automatically.
const ToastTTL = 5 * time.Second

// Kind is the visual variant of a toast.
type Kind string

const (
	KindDefault Kind = "default"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// ParseKind validates a toast kind; empty input is the default kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindDefault, nil
	}
	switch k := Kind(s); k {
	case KindDefault, KindSuccess, KindError, KindInfo:
		return k, nil
	default:
		return "", fmt.Errorf("invalid toast kind %q", s)
	}
}

// ToastInput is what callers provide; the store assigns id and creation time.
type ToastInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Kind        Kind   `json:"kind,omitempty"`
}

// Toast is a transient notification.
type Toast struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Kind        Kind      `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the toast should no longer be shown at now.
func (t Toast) Expired(now time.Time) bool {
	return !now.Before(t.CreatedAt.Add(ToastTTL))
}

func newToast(in ToastInput, now time.Time) Toast {
	kind := in.Kind
	if kind == "" {
		kind = KindDefault
	}
	return Toast{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Kind:        kind,
		CreatedAt:   now,
	}
}
