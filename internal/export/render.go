// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/muse/internal/model"
)

// markdown renders message bodies. Raw HTML in model output is omitted, not
// passed through.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func renderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// renderMessageHTML renders one message as an <article>. Shared by the
// print page and the document fragment.
func renderMessageHTML(opts *Options, msg *model.Message) (string, error) {
	var sb strings.Builder

	class := string(msg.Role) + "-message"
	if msg.IsError {
		class += " error-message"
	}
	sb.WriteString(fmt.Sprintf("<article class=\"message %s\">\n", class))
	sb.WriteString("<div class=\"message-header\">")
	sb.WriteString(fmt.Sprintf("<span class=\"role-label\">%s</span>", html.EscapeString(opts.author(msg.Role))))
	if opts.IncludeTimestamps {
		sb.WriteString(fmt.Sprintf(" <span class=\"timestamp\">%s</span>", formatTimestamp(msg.Timestamp)))
	}
	sb.WriteString("</div>\n")

	sb.WriteString("<div class=\"message-content\">\n")
	switch {
	case msg.Kind == model.KindImage && msg.MediaURL != "":
		sb.WriteString(fmt.Sprintf("<img src=\"%s\" alt=\"Generated image\">\n", html.EscapeString(msg.MediaURL)))
	case msg.Kind == model.KindVideo && msg.MediaURL != "":
		sb.WriteString(fmt.Sprintf("<p><a href=\"%s\">Video</a></p>\n", html.EscapeString(msg.MediaURL)))
	}

	text := strings.TrimSpace(msg.Content)
	if msg.Kind == model.KindMindMap {
		text = messageBody(msg)
	}
	if text != "" {
		rendered, err := renderMarkdown(text)
		if err != nil {
			return "", err
		}
		sb.WriteString(rendered)
	}
	sb.WriteString("</div>\n</article>\n")
	return sb.String(), nil
}
