// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/kv"
	"github.com/jeranaias/muse/internal/model"
)

// ThemeKey is the kv key holding the theme token.
const ThemeKey = "theme"

// ErrInvalidTheme is returned by Set for unknown tokens.
var ErrInvalidTheme = errors.New("invalid theme")

// SystemPrefersDark reports the platform's dark-mode signal. Used only when no
// theme has been persisted.
type SystemPrefersDark func() bool

// TerminalPrefersDark asks the terminal for its background colour.
func TerminalPrefersDark() bool {
	return termenv.HasDarkBackground()
}

// ThemeStore persists the light/dark theme token.
type ThemeStore struct {
	mu      sync.RWMutex
	backend kv.Store
	theme   model.Theme
}

// NewThemeStore loads the persisted theme. When no valid token is stored the
// system signal decides; the fallback is not written back.
func NewThemeStore(backend kv.Store, system SystemPrefersDark) *ThemeStore {
	s := &ThemeStore{backend: backend}

	raw, err := backend.Get(ThemeKey)
	if err == nil {
		t := model.Theme(strings.TrimSpace(string(raw)))
		if t.Valid() {
			s.theme = t
			return s
		}
		log.Warn().Str("value", string(raw)).Msg("THEME_INVALID | using system default")
	} else if !errors.Is(err, kv.ErrNotFound) {
		log.Warn().Err(err).Msg("THEME_READ_FAILED | using system default")
	}

	s.theme = model.ThemeLight
	if system != nil && system() {
		s.theme = model.ThemeDark
	}
	return s
}

// Get returns the effective theme.
func (s *ThemeStore) Get() model.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// Set persists t.
func (s *ThemeStore) Set(t model.Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, string(t))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = t
	if err := s.backend.Set(ThemeKey, []byte(t)); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	return nil
}

// Toggle flips between light and dark and returns the new theme.
func (s *ThemeStore) Toggle() (model.Theme, error) {
	next := model.ThemeDark
	if s.Get() == model.ThemeDark {
		next = model.ThemeLight
	}
	return next, s.Set(next)
}
