// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "muse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get("conversations")
			assert.True(t, errors.Is(err, ErrNotFound), "missing key should be ErrNotFound, got %v", err)

			require.NoError(t, store.Set("conversations", []byte(`[]`)))
			got, err := store.Get("conversations")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))

			require.NoError(t, store.Set("conversations", []byte(`[{"id":"a"}]`)))
			got, err = store.Get("conversations")
			require.NoError(t, err)
			assert.Equal(t, `[{"id":"a"}]`, string(got))

			require.NoError(t, store.Delete("conversations"))
			require.NoError(t, store.Delete("conversations"), "deleting twice is not an error")
			_, err = store.Get("conversations")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStore_RejectsInvalidKeys(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.Set("../escape", []byte("x")))
			assert.Error(t, store.Set("", []byte("x")))
		})
	}
}

func TestFileStore_Watch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys := make(chan string, 16)
	require.NoError(t, store.Watch(ctx, func(key string) { keys <- key }))

	other, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, other.Set("theme", []byte("dark")))

	select {
	case key := <-keys:
		assert.Equal(t, "theme", key)
	case <-time.After(5 * time.Second):
		t.Fatal("no watch event for external write")
	}
}
