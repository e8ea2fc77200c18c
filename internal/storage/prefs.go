// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/kv"
	"github.com/jeranaias/muse/internal/model"
)

// PreferencesKey is the kv key holding the user preferences object.
const PreferencesKey = "userPreferences"

// PreferencesStore persists the user name and custom instruction.
type PreferencesStore struct {
	mu      sync.RWMutex
	backend kv.Store
	prefs   model.Preferences
}

// NewPreferencesStore loads preferences from backend. Absent or malformed
// values yield empty preferences.
func NewPreferencesStore(backend kv.Store) *PreferencesStore {
	s := &PreferencesStore{backend: backend}

	raw, err := backend.Get(PreferencesKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		log.Warn().Err(err).Msg("PREFERENCES_READ_FAILED | using defaults")
	default:
		if err := json.Unmarshal(raw, &s.prefs); err != nil {
			log.Warn().Err(err).Msg("PREFERENCES_CORRUPT | using defaults")
			s.prefs = model.Preferences{}
		}
	}
	return s
}

// Get returns the current preferences.
func (s *PreferencesStore) Get() model.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Save replaces and persists the preferences.
func (s *PreferencesStore) Save(p model.Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
	if err := s.backend.Set(PreferencesKey, data); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
