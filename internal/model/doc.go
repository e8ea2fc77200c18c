// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: ordered, append-only list of messages plus title and pin state
//   - Message: single message with role, kind, content, timestamp and media
//   - Kind: tagged variant of a message (text, image, video, mindmap)
//   - Preferences: user display name and custom system instruction
//   - Theme: persisted light/dark token
//
// # Usage
//
//	msg := model.NewUserMessage("Hello")
//	conv := model.NewConversation("New Chat", msg)
//	placeholder := model.NewPlaceholder(model.KindText, "")
//	conv.Messages = append(conv.Messages, placeholder)
//
// Values handed out by the conversation store are snapshots; use Clone
// before mutating.
package model
