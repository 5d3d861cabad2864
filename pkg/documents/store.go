// Package documents archives uploaded report files so phase payloads can
// reference them by key.
package documents

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transplantflow/platform/pkg/common/errs"
)

// Info describes a stored document.
type Info struct {
	Key         string    `json:"key"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	StoredAt    time.Time `json:"storedAt"`
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, Info, error)
	Driver() string
}

// NewKey builds an archive key of the form <party>/<phase>/<uuid>-<file>.
func NewKey(partyID string, phaseID int, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return fmt.Sprintf("%s/%d/%s-%s", partyID, phaseID, uuid.NewString(), base)
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return errs.Validation("invalid document key %q", key)
	}
	return nil
}

func notFound(key string) error {
	return fmt.Errorf("document %s: %w", key, errs.ErrNotFound)
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: document %s %s: %v", errs.ErrUnavailable, op, key, err)
}
