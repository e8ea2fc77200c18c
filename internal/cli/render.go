// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/mindmap"
	"github.com/jeranaias/muse/internal/model"
)

// Renderer formats messages for the terminal.
type Renderer struct {
	width    int
	markdown bool
	theme    model.Theme
	md       *glamour.TermRenderer
}

// NewRenderer creates a renderer. markdown enables glamour for assistant
// text; it falls back to wrapped plain text if glamour cannot initialise.
func NewRenderer(theme model.Theme, width int, markdown bool) *Renderer {
	r := &Renderer{width: width, markdown: markdown}
	r.SetTheme(theme)
	return r
}

// SetTheme rebuilds the markdown renderer for t.
func (r *Renderer) SetTheme(t model.Theme) {
	r.theme = t
	r.md = nil
	if !r.markdown {
		return
	}
	style := "light"
	if t == model.ThemeDark {
		style = "dark"
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		log.Debug().Err(err).Msg("MARKDOWN_RENDERER_UNAVAILABLE")
		return
	}
	r.md = md
}

// Header renders the author line of a message.
func (r *Renderer) Header(m *model.Message, userLabel string) string {
	name := m.Role.DisplayName()
	if m.Role == model.RoleUser && userLabel != "" {
		name = userLabel
	}
	return roleStyle(m.Role).Render(name) + " " + dimStyle.Render(m.Timestamp.Format("15:04"))
}

// Body renders the message content according to its kind.
func (r *Renderer) Body(m *model.Message) string {
	if m.IsError {
		return errorStyle.Render(m.Content)
	}

	switch m.Kind {
	case model.KindMindMap:
		return r.mindMap(m)
	case model.KindImage, model.KindVideo:
		var b strings.Builder
		if text := strings.TrimSpace(m.Content); text != "" {
			b.WriteString(WrapText(text, r.width))
		}
		if ref := mediaLine(m); ref != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(dimStyle.Render(ref))
		}
		return b.String()
	}

	if m.Role == model.RoleModel && r.md != nil && !m.Streaming {
		if out, err := r.md.Render(m.Content); err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return WrapText(m.Content, r.width)
}

// Message renders header and body.
func (r *Renderer) Message(m *model.Message, userLabel string) string {
	return r.Header(m, userLabel) + "\n" + r.Body(m)
}

func (r *Renderer) mindMap(m *model.Message) string {
	status := mindmap.StatusOf(m.Content, !m.Streaming)
	node, _ := mindmap.Preview(m.Content)
	if node == nil {
		return dimStyle.Render("[mind map: " + status.String() + "]")
	}
	out := strings.TrimRight(node.Outline(), "\n")
	if status != mindmap.StatusReady {
		out += "\n" + dimStyle.Render("[mind map: "+status.String()+"]")
	}
	return out
}

// mediaLine describes a message's media without dumping data URIs.
func mediaLine(m *model.Message) string {
	if m.MediaURL == "" {
		return ""
	}
	if a, ok := model.ParseDataURI(m.MediaURL); ok {
		return fmt.Sprintf("[%s attached: %s, %d KB]", kindLabel(m.Kind), a.MimeType, (len(a.Data)+1023)/1024)
	}
	return fmt.Sprintf("[%s: %s]", kindLabel(m.Kind), m.MediaURL)
}

func kindLabel(k model.Kind) string {
	if k == model.KindVideo {
		return "Video"
	}
	return "Image"
}
