// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/muse/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete muse configuration.
type Config struct {
	// Provider selects the generation backend: "gemini" or "openai".
	Provider string `toml:"provider"`

	Gemini  GeminiConfig  `toml:"gemini"`
	OpenAI  OpenAIConfig  `toml:"openai"`
	Storage StorageConfig `toml:"storage"`
	Export  ExportConfig  `toml:"export"`
	UI      UIConfig      `toml:"ui"`
	Log     LogConfig     `toml:"log"`
}

// GeminiConfig configures the Gemini gateway.
type GeminiConfig struct {
	APIKey     string `toml:"api_key"`
	TextModel  string `toml:"text_model"`
	ImageModel string `toml:"image_model"`
	VideoModel string `toml:"video_model"`
	// PollIntervalSecs paces video operation polling.
	PollIntervalSecs int `toml:"poll_interval_secs"`
}

// OpenAIConfig configures the OpenAI-compatible gateway.
type OpenAIConfig struct {
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	ImageModel string `toml:"image_model"`
}

// StorageConfig selects where conversations and preferences live.
type StorageConfig struct {
	// Backend is one of "file", "sqlite" or "memory".
	Backend string `toml:"backend"`
	// Dir holds the file store or the SQLite database. Empty means ~/.muse/data.
	Dir string `toml:"dir"`
	// Watch reloads conversations when another process edits the file store.
	Watch bool `toml:"watch"`
}

// ExportConfig configures export and upload destinations.
type ExportConfig struct {
	// Dir receives local downloads. Empty means ~/.muse/exports.
	Dir string `toml:"dir"`
	// DriveFolderID is the parent folder for Drive uploads.
	DriveFolderID string `toml:"drive_folder_id"`
	// DriveToken is an OAuth access token with the drive.file scope.
	DriveToken string `toml:"drive_token"`
}

// UIConfig contains terminal client settings.
type UIConfig struct {
	// NotifyLifetimeSecs is how long notifications stay visible.
	NotifyLifetimeSecs int `toml:"notify_lifetime_secs"`
	// RenderMarkdown renders assistant replies with glamour.
	RenderMarkdown bool `toml:"render_markdown"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is a zerolog level name.
	Level string `toml:"level"`
	// File, when set, receives logs instead of stderr.
	File string `toml:"file"`
}

// PollInterval returns the video poll interval as a duration.
func (g GeminiConfig) PollInterval() time.Duration {
	return time.Duration(g.PollIntervalSecs) * time.Second
}

// NotifyLifetime returns the notification lifetime as a duration.
func (u UIConfig) NotifyLifetime() time.Duration {
	return time.Duration(u.NotifyLifetimeSecs) * time.Second
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Provider: "gemini",
		Gemini: GeminiConfig{
			TextModel:        "gemini-2.5-flash",
			ImageModel:       "imagen-4.0-generate-001",
			VideoModel:       "veo-2.0-generate-001",
			PollIntervalSecs: 10,
		},
		OpenAI: OpenAIConfig{
			Model:      "gpt-4-turbo-preview",
			ImageModel: "dall-e-3",
		},
		Storage: StorageConfig{
			Backend: "file",
			Watch:   true,
		},
		UI: UIConfig{
			NotifyLifetimeSecs: 5,
			RenderMarkdown:     true,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the muse configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".muse"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the storage directory, defaulting under Dir.
func (c *Config) DataDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// ExportDir returns the local download directory, defaulting under Dir.
func (c *Config) ExportDir() (string, error) {
	if c.Export.Dir != "" {
		return c.Export.Dir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "exports"), nil
}

// ensureSecurePermissions tightens config files to 0600; they hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads ~/.muse/config.toml if present, applies environment overrides
// and validates the result. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, cfg.Validate()
	}
	return LoadFromPath(path)
}

// LoadFromPath loads the config at path. A missing file yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration as TOML with 0600 permissions.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# muse configuration file\n")
	buf.WriteString("# Environment variables (MUSE_*) override these values.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validProviders = []string{"gemini", "openai"}
	validBackends  = []string{"file", "sqlite", "memory"}
	validLevels    = []string{"trace", "debug", "info", "warn", "error", "disabled"}
)

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Validate validates the configuration and returns any errors.
// API keys are not required here; gateways report a missing key when built.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if !oneOf(c.Provider, validProviders) {
		errs = append(errs, ValidationError{
			Field:   "provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: %s", c.Provider, strings.Join(validProviders, ", ")),
		})
	}
	if !oneOf(c.Storage.Backend, validBackends) {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: %s", c.Storage.Backend, strings.Join(validBackends, ", ")),
		})
	}
	if c.Log.Level != "" && !oneOf(c.Log.Level, validLevels) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: %s", c.Log.Level, strings.Join(validLevels, ", ")),
		})
	}
	if c.Gemini.PollIntervalSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "gemini.poll_interval_secs",
			Message: "must be at least 1",
		})
	}
	if c.UI.NotifyLifetimeSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "ui.notify_lifetime_secs",
			Message: "must be at least 1",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	c.Provider = strings.ToLower(c.Provider)
	if c.Gemini.TextModel == "" {
		c.Gemini.TextModel = d.Gemini.TextModel
	}
	if c.Gemini.ImageModel == "" {
		c.Gemini.ImageModel = d.Gemini.ImageModel
	}
	if c.Gemini.VideoModel == "" {
		c.Gemini.VideoModel = d.Gemini.VideoModel
	}
	if c.Gemini.PollIntervalSecs == 0 {
		c.Gemini.PollIntervalSecs = d.Gemini.PollIntervalSecs
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = d.OpenAI.Model
	}
	if c.OpenAI.ImageModel == "" {
		c.OpenAI.ImageModel = d.OpenAI.ImageModel
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.UI.NotifyLifetimeSecs == 0 {
		c.UI.NotifyLifetimeSecs = d.UI.NotifyLifetimeSecs
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - MUSE_PROVIDER: overrides provider
//   - MUSE_GEMINI_API_KEY, GEMINI_API_KEY: override gemini.api_key
//   - MUSE_OPENAI_API_KEY, OPENAI_API_KEY: override openai.api_key
//   - MUSE_OPENAI_BASE_URL: overrides openai.base_url
//   - MUSE_MODEL: overrides the text model of the selected provider
//   - MUSE_STORAGE: overrides storage.backend
//   - MUSE_DATA_DIR: overrides storage.dir
//   - MUSE_EXPORT_DIR: overrides export.dir
//   - MUSE_DRIVE_TOKEN: overrides export.drive_token
//   - MUSE_LOG_LEVEL: overrides log.level
//   - MUSE_NOTIFY_SECS: overrides ui.notify_lifetime_secs
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MUSE_PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := firstEnv("MUSE_GEMINI_API_KEY", "GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := firstEnv("MUSE_OPENAI_API_KEY", "OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("MUSE_OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}

	if v := os.Getenv("MUSE_MODEL"); v != "" {
		switch c.Provider {
		case "openai":
			c.OpenAI.Model = v
		default:
			c.Gemini.TextModel = v
		}
	}

	if v := os.Getenv("MUSE_STORAGE"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MUSE_DATA_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("MUSE_EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := os.Getenv("MUSE_DRIVE_TOKEN"); v != "" {
		c.Export.DriveToken = v
	}
	if v := os.Getenv("MUSE_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MUSE_NOTIFY_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.UI.NotifyLifetimeSecs = n
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. Load failures fall back to defaults.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
