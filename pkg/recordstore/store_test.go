package recordstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transplantflow/platform/pkg/common/errs"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "workflows/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound), "expected ErrNotFound, got %v", err)

	require.NoError(t, store.Set(ctx, "parties/p1", []byte(`{"id":"p1"}`)))
	got, err := store.Get(ctx, "parties/p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1"}`, string(got))

	require.NoError(t, store.Set(ctx, "parties/p1", []byte(`{"id":"p1","name":"Jane"}`)))
	got, err = store.Get(ctx, "parties/p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1","name":"Jane"}`, string(got))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	value := []byte(`{"a":1}`)
	require.NoError(t, store.Set(ctx, "k", value))
	value[2] = 'b'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	store := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Set(ctx, "k", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnavailable))
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestSQLiteStoreClosedIsUnavailable(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Set(context.Background(), "k", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnavailable))
}
