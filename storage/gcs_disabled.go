//go:build !gcp

package storage

import (
	"context"
	"errors"
)

func newGCSStore(context.Context, string, string) (ObjectStore, error) {
	return nil, errors.New("GCS storage requires building with -tags gcp")
}
