// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides the local key/value persistence used for session state.
//
// Each key holds one opaque value (a serialized JSON document or a short
// token). The stores above it always read and write whole values.
//
// # Backends
//
//   - FileStore: one file per key under a directory, atomic writes, optional
//     fsnotify watch for changes made by another process
//   - SQLiteStore: a single kv table in a SQLite database (modernc.org/sqlite)
//   - MemoryStore: in-process map, used in tests
package kv
