// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// KIND TYPE
// =============================================================================

// Kind is the tagged variant of a message. It decides which optional fields
// are meaningful: only KindImage and KindVideo carry a media URL.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindVideo
	KindMindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindMindMap:
		return "mindmap"
	default:
		return "unknown"
	}
}

// HasMedia reports whether messages of this kind carry a media URL.
func (k Kind) HasMedia() bool {
	return k == KindImage || k == KindVideo
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string
	Role      Role
	Kind      Kind
	Timestamp time.Time

	// Content grows by append while Streaming; frozen afterwards.
	Content string

	// MediaURL is a remote URL or data URI. Only set for KindImage/KindVideo.
	MediaURL string

	// IsError marks a failed generation; no further appends are accepted.
	IsError bool

	// Streaming is true while a generation owns this message (not persisted).
	Streaming bool
}

// NewUserMessage creates a fully populated user text message.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        NewID(),
		Role:      RoleUser,
		Kind:      KindText,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserImageMessage creates a user message with an attached image.
// dataURI is normally a data: URI built by Attachment.DataURI.
func NewUserImageMessage(content, dataURI string) *Message {
	msg := NewUserMessage(content)
	msg.Kind = KindImage
	msg.MediaURL = dataURI
	return msg
}

// NewPlaceholder creates an empty model message that a generation will fill.
// pending is shown until the first fragment or the final value arrives.
func NewPlaceholder(kind Kind, pending string) *Message {
	return &Message{
		ID:        NewID(),
		Role:      RoleModel,
		Kind:      kind,
		Content:   pending,
		Timestamp: time.Now(),
		Streaming: true,
	}
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// MESSAGE STATE
// =============================================================================

// Terminal reports whether the message accepts no further content updates.
func (m *Message) Terminal() bool {
	return m.IsError || !m.Streaming
}

// AppendFragment appends streamed text. Returns false if the message is terminal.
func (m *Message) AppendFragment(fragment string) bool {
	if m.Terminal() {
		return false
	}
	m.Content += fragment
	return true
}

// Complete closes the stream. For media kinds the URL is attached and the
// content replaced with doneText.
func (m *Message) Complete(mediaURL, doneText string) {
	if m.Kind.HasMedia() && mediaURL != "" {
		m.MediaURL = mediaURL
		m.Content = doneText
	}
	m.Streaming = false
}

// Fail marks the message as failed and substitutes its content with text.
func (m *Message) Fail(text string) {
	m.IsError = true
	m.Streaming = false
	m.Content = text
}

// Preview returns a truncated single-line preview of the message content.
func (m *Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// wireMessage is the persisted shape: a flat record with optional media
// fields and flags, compatible with earlier stored data.
type wireMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	IsError   bool      `json:"isError,omitempty"`
	IsMindMap bool      `json:"isMindMap,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		IsError:   m.IsError,
	}
	switch m.Kind {
	case KindImage:
		w.ImageURL = m.MediaURL
	case KindVideo:
		w.VideoURL = m.MediaURL
	case KindMindMap:
		w.IsMindMap = true
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Invalid flag combinations are
// resolved with precedence video > image > mindmap > text.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:        w.ID,
		Role:      w.Role,
		Content:   w.Content,
		Timestamp: w.Timestamp,
		IsError:   w.IsError,
	}
	switch {
	case w.VideoURL != "":
		m.Kind, m.MediaURL = KindVideo, w.VideoURL
	case w.ImageURL != "":
		m.Kind, m.MediaURL = KindImage, w.ImageURL
	case w.IsMindMap:
		m.Kind = KindMindMap
	default:
		m.Kind = KindText
	}
	return nil
}
