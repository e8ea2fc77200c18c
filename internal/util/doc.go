// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across muse packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateWidth: display-width truncation for titles (CJK aware)
//   - SingleLine: collapse whitespace and newlines into single spaces
//   - CleanTitle: normalise a model-generated title
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateWidth(util.SingleLine(prompt), 30)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
