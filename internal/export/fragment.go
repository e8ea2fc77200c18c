// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/jeranaias/muse/internal/model"
)

// DocExporter produces a minimal HTML document without styling or scripts,
// suitable for conversion into a word-processor document on upload.
type DocExporter struct {
	options *Options
}

// NewDocExporter creates a document exporter.
func NewDocExporter(opts *Options) *DocExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &DocExporter{options: opts}
}

func (e *DocExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("<html><head><meta charset=\"UTF-8\">")
	sb.WriteString(fmt.Sprintf("<title>%s</title></head><body>\n", html.EscapeString(conv.Title)))
	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(conv.Title)))
	for _, msg := range conv.Messages {
		rendered, err := renderMessageHTML(e.options, msg)
		if err != nil {
			return nil, err
		}
		sb.WriteString(rendered)
	}
	sb.WriteString("</body></html>\n")
	return []byte(sb.String()), nil
}

func (e *DocExporter) FileExtension() string {
	return ".html"
}

func (e *DocExporter) MimeType() string {
	return "text/html"
}
