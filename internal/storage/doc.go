// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the persisted session state of muse.
//
// # Key Types
//
//   - ConversationStore: ordered conversations with an active pointer,
//     copy-on-write snapshots and whole-list persistence on every mutation
//   - Snapshot: immutable view of the store at one version
//   - PreferencesStore: user name and custom instruction
//   - ThemeStore: light/dark token with a system fallback
//
// # Usage
//
//	backend, _ := kv.NewFileStore(stateDir)
//	store := storage.NewConversationStore(backend)
//	id, err := store.Create(model.NewUserMessage("Hello"), model.DefaultTitle)
//	err = store.AppendContent(id, placeholderID, "fragment")
//
// # Storage Layout
//
// Each store owns one fixed key of the kv backend: "conversations" (JSON
// array), "userPreferences" (JSON object) and "theme" (plain token). Absent
// or corrupt values fall back to empty defaults.
package storage
