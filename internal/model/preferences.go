// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/base64"
	"strings"
)

// Preferences holds the user's display name and custom system instruction.
type Preferences struct {
	UserName          string `json:"userName"`
	CustomInstruction string `json:"customInstruction"`
}

// SystemInstruction renders the preferences as a system-instruction prefix.
// Returns "" when nothing is set.
func (p Preferences) SystemInstruction() string {
	var parts []string
	if name := strings.TrimSpace(p.UserName); name != "" {
		parts = append(parts, "The user's name is "+name+".")
	}
	if ci := strings.TrimSpace(p.CustomInstruction); ci != "" {
		parts = append(parts, ci)
	}
	return strings.Join(parts, "\n")
}

// Theme is the persisted display theme token.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme token.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Attachment is an image attached to a chat request.
type Attachment struct {
	MimeType string
	Data     []byte
}

// DataURI encodes the attachment as a data: URI.
func (a Attachment) DataURI() string {
	return "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// ParseDataURI decodes a base64 data: URI. ok is false for anything else.
func ParseDataURI(uri string) (a Attachment, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return Attachment{}, false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return Attachment{}, false
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Attachment{}, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Attachment{}, false
	}
	return Attachment{MimeType: mime, Data: data}, true
}
