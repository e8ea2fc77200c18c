// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile drives generation requests into the conversation store.
//
// A request resolves its target conversation, appends the user message and
// a placeholder model message, then consumes the gateway result in the
// background. Fragments are addressed by (conversation id, message id), so
// any number of requests may be in flight across conversations without
// touching each other's messages.
//
// # Lifecycle
//
//	Idle -> Dispatched -> Streaming -> Completed | Failed | Superseded
//
// Run returns a Handle that tracks one request through these states. A
// request is Superseded when its conversation is deleted while it runs; the
// remaining output is discarded and the stream is abandoned.
//
// # Titles
//
// New conversations get a provisional title from their mode and a
// background title task that renames them when the gateway answers.
// Deleting a conversation cancels its title task.
package reconcile
