// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/jeranaias/muse/internal/model"
)

// RuleWidth is the width of the separator lines in text transcripts.
const RuleWidth = 50

// TextExporter writes a plain-text transcript:
//
//	<title>
//	Exported: <timestamp>
//	==================================================
//
//	[<timestamp>] <author>:
//	<content>
//	--------------------------------------------------
type TextExporter struct {
	options *Options
}

// NewTextExporter creates a text exporter.
func NewTextExporter(opts *Options) *TextExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &TextExporter{options: opts}
}

// Export renders the transcript.
func (e *TextExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(conv.Title)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Exported: %s\n", formatTimestamp(e.options.now())))
	sb.WriteString(strings.Repeat("=", RuleWidth))
	sb.WriteString("\n\n")

	for _, msg := range conv.Messages {
		if e.options.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("[%s] ", formatTimestamp(msg.Timestamp)))
		}
		sb.WriteString(e.options.author(msg.Role))
		sb.WriteString(":\n")
		sb.WriteString(messageBody(msg))
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("-", RuleWidth))
		sb.WriteString("\n\n")
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for text.
func (e *TextExporter) FileExtension() string {
	return ".txt"
}

// MimeType returns the MIME type for text.
func (e *TextExporter) MimeType() string {
	return "text/plain"
}
