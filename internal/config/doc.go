// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the muse configuration.
//
// Configuration is resolved in this order, later sources winning:
//   - Built-in defaults
//   - ~/.muse/config.toml
//   - Environment variables (MUSE_*)
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("CONFIG_INVALID")
//	}
//	dir, _ := cfg.DataDir()
package config
