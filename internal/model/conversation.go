// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// DefaultTitle is the provisional title of a new chat conversation.
const DefaultTitle = "New Chat"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered, append-only list of messages.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	IsPinned  bool       `json:"isPinned"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
}

// NewConversation creates a conversation seeded with its first message.
func NewConversation(title string, first *Message) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	conv := &Conversation{
		ID:        NewID(),
		Title:     title,
		Messages:  make([]*Message, 0, 2),
		CreatedAt: time.Now(),
	}
	if first != nil {
		conv.Messages = append(conv.Messages, first)
	}
	return conv
}

// =============================================================================
// MESSAGE LOOKUP
// =============================================================================

// MessageByID returns the message with the given ID and its index, or nil, -1.
func (c *Conversation) MessageByID(id string) (*Message, int) {
	for i, msg := range c.Messages {
		if msg.ID == id {
			return msg, i
		}
	}
	return nil, -1
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Preview returns a short preview taken from the first user message.
func (c *Conversation) Preview(maxLen int) string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Preview(maxLen)
		}
	}
	return ""
}

// =============================================================================
// COPY-ON-WRITE
// =============================================================================

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}

// CloneShallow copies the conversation record and its message slice but
// shares the message values. Used when only one message will be replaced.
func (c *Conversation) CloneShallow() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return &clone
}
