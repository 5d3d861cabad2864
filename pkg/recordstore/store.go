// Package recordstore is the key-value substrate the workflow engine persists
// through. Values are opaque JSON documents.
package recordstore

import (
	"context"
	"fmt"

	"github.com/transplantflow/platform/pkg/common/errs"
)

// Store is a get/set record store. Get returns errs.ErrNotFound for absent
// keys; any backend failure wraps errs.ErrUnavailable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", errs.ErrUnavailable, op, key, err)
}

func notFound(key string) error {
	return fmt.Errorf("record %s: %w", key, errs.ErrNotFound)
}
