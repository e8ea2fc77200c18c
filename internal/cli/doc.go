// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the muse terminal client: a line-editing REPL over the
// conversation store and the stream reconciler.
//
// The client holds no conversation state of its own. Every command reads a
// store snapshot or calls a store or reconciler operation, so what it prints
// is always what would be persisted.
//
// # Commands
//
//	/new                  start a fresh conversation on the next message
//	/list                 list conversations, pinned first
//	/open <n|id>          make a conversation active and show it
//	/mode [name]          show or set the generation mode
//	/attach <path>        attach an image to the next chat message
//	/export <format>      write the active conversation to the export dir
//	/upload <json|doc>    upload the active conversation to Drive
package cli
