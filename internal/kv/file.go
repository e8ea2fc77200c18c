// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/util"
)

// FileStore keeps one file per key under BaseDir.
type FileStore struct {
	// BaseDir is the directory holding the value files.
	// Default: ~/.muse/state/
	BaseDir string
}

// NewFileStore creates a FileStore, creating baseDir if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// Get implements Store.
func (s *FileStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set implements Store. Writes are atomic.
func (s *FileStore) Set(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path(key), value, 0600)
}

// Delete implements Store.
func (s *FileStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

// Watch calls fn with the key of every file that is created, written
// or renamed into place under BaseDir, until ctx is done. Temp files from
// atomic writes are ignored. Own writes are reported too; callers compare
// contents if they need to skip them.
func (s *FileStore) Watch(ctx context.Context, fn func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.BaseDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.BaseDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				name := filepath.Base(ev.Name)
				if strings.HasPrefix(name, ".tmp-") || ValidateKey(name) != nil {
					continue
				}
				fn(name)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(werr).Str("dir", s.BaseDir).Msg("state watch error")
			}
		}
	}()
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.BaseDir, key)
}
