// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations for saving, printing and upload.
//
// # Key Types
//
//   - Exporter: renders one conversation (Export, FileExtension, MimeType)
//   - Options: timestamps, theme, user label and clock
//
// # Supported Formats
//
//   - Text: plain transcript with fixed-width rules
//   - HTML: print-ready page; Markdown rendered with goldmark
//   - JSON: the persisted record, indented; ExportAll covers the full list
//   - Markdown: frontmatter plus per-message sections
//   - Doc: HTML body fragment used for document conversion on upload
//
// # Usage
//
//	exp, err := export.ForFormat("text", nil)
//	data, err := exp.Export(conv)
//	name := export.Filename(conv, exp, time.Now())
package export
